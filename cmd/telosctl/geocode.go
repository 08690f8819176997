package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"telos_booking/internal/adapters/geocode"
	redisad "telos_booking/internal/adapters/redis"
	"telos_booking/internal/app"
)

func newGeocodeCmd() *cobra.Command {
	var (
		ciudad string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "geocode",
		Short: "Fill in missing coordinates for stored telos",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			geo, err := geocode.New(e.cfg.GeocoderURL, "telosctl/1.0 (+"+e.cfg.PublicBaseURL+")", 1)
			if err != nil {
				return err
			}
			cache := redisad.New(e.cfg.RedisAddr, e.cfg.RedisPass, e.cfg.RedisDB)
			defer cache.Close()

			res, err := app.NewCommandService(e.repo, cache, geo).BackfillCoords(cmd.Context(), ciudad, limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked %d, resolved %d, failed %d\n", res.Checked, res.Resolved, res.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&ciudad, "ciudad", "", "only this city (default: all)")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum telos to geocode")
	return cmd
}
