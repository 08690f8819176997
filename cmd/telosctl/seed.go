package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"telos_booking/internal/app"
	"telos_booking/internal/domain"
)

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the bundled sample telos into the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			ts := seedTelos(app.MustLoadMockData())
			cities := map[string]bool{}
			for _, t := range ts {
				if cities[t.Ciudad] {
					continue
				}
				cities[t.Ciudad] = true
				if _, err := e.repo.EnsureCity(cmd.Context(), t.Ciudad, nil); err != nil {
					return fmt.Errorf("ensure city %q: %w", t.Ciudad, err)
				}
			}
			res, err := e.repo.UpsertTelos(cmd.Context(), ts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d telos in %d cities (%d inserted, %d updated)\n",
				len(ts), len(cities), res.Inserted, res.Updated)
			return nil
		},
	}
}

// seedTelos retags the mock set so stored rows are told apart from live mock
// responses.
func seedTelos(m *app.MockData) []domain.Telo {
	ts := m.All()
	for i := range ts {
		ts[i].ID = 0
		ts[i].Fuente = domain.SourceSeed
		ts[i].Activo = true
	}
	return ts
}
