package main

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telos_booking/internal/app"
	"telos_booking/internal/app/apptest"
	"telos_booking/internal/domain"
)

func TestRunEnrich_SkipsStoredCities(t *testing.T) {
	ctx := context.Background()
	repo := apptest.NewRepo()
	_, err := repo.UpsertTelos(ctx, seedTelos(app.MustLoadMockData()))
	require.NoError(t, err)
	hook := &apptest.Enricher{On: true}

	st := runEnrich(ctx, repo, hook, []string{"Rosario", "Tandil", "Villa Gesell", "x"}, 2, "https://cb", false)

	assert.EqualValues(t, 2, st.requested.Load())
	assert.EqualValues(t, 1, st.skipped.Load())
	assert.EqualValues(t, 1, st.failed.Load())

	var got []string
	for _, r := range hook.Requests() {
		assert.Equal(t, "https://cb", r.CallbackURL)
		assert.NotEmpty(t, r.JobID)
		got = append(got, r.Slug)
	}
	sort.Strings(got)
	assert.Equal(t, []string{"tandil", "villa-gesell"}, got)
}

func TestRunEnrich_DryRunAndFailures(t *testing.T) {
	ctx := context.Background()
	hook := &apptest.Enricher{On: true, Err: errors.New("boom")}

	st := runEnrich(ctx, apptest.NewRepo(), hook, []string{"Tandil"}, 1, "", true)
	assert.EqualValues(t, 1, st.requested.Load())
	assert.Empty(t, hook.Requests())

	st = runEnrich(ctx, apptest.NewRepo(), hook, []string{"Tandil"}, 1, "", false)
	assert.EqualValues(t, 1, st.failed.Load())
}

func TestEnrichTargets(t *testing.T) {
	ctx := context.Background()
	repo := apptest.NewRepo()
	_, _ = repo.EnsureCity(ctx, "Azul", nil)
	_, _ = repo.EnsureCity(ctx, "Rosario", nil)
	_, err := repo.UpsertTelos(ctx, seedTelos(app.MustLoadMockData()))
	require.NoError(t, err)

	got, err := enrichTargets(ctx, repo, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Azul"}, got)

	got, err = enrichTargets(ctx, repo, []string{" Salta ", "", "Jujuy"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Salta", "Jujuy"}, got)
}

func TestSeedTelos(t *testing.T) {
	for _, tl := range seedTelos(app.MustLoadMockData()) {
		assert.Zero(t, tl.ID)
		assert.Equal(t, domain.SourceSeed, tl.Fuente)
		assert.True(t, tl.Activo)
	}
}
