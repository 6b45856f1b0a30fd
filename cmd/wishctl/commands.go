package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wishlist/backend/config"
	"github.com/wishlist/backend/internal/app"
	"github.com/wishlist/backend/internal/logger"
	"github.com/wishlist/backend/internal/usecase"
)

var debug bool

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wishctl",
		Short:         "Wish-list product signal tools",
		Long:          `Extract titles, prices and product names the same way the API does.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(
		priceCmd(),
		titleCmd(),
		pagePriceCmd(),
		searchCmd(),
		imageCmd(),
		providersCmd(),
	)
	return root
}

// withApp loads configuration and wires the usecases for one command run
func withApp(run func(cmd *cobra.Command, args []string, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		level := "warn"
		if debug {
			level = "debug"
		}
		log, err := logger.New(logger.Config{Level: level, Development: true, OutputPaths: []string{"stderr"}})
		if err != nil {
			return err
		}
		defer log.Sync()

		a, err := app.New(cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		return run(cmd, args, a)
	}
}

func priceCmd() *cobra.Command {
	var currency string
	cmd := &cobra.Command{
		Use:   "price <text>",
		Short: "Parse a price from free text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			price := usecase.ExtractPrice(strings.Join(args, " "), currency)
			if price == nil {
				return fmt.Errorf("no price found")
			}
			return printJSON(cmd.OutOrStdout(), price)
		},
	}
	cmd.Flags().StringVar(&currency, "currency", usecase.DefaultCurrency, "currency when the text names none")
	return cmd
}

func titleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "title <url>",
		Short: "Extract the product title of a page",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			title, err := a.Titles.ExtractFromURL(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), title)
		}),
	}
}

func pagePriceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "page-price <url>",
		Short: "Read the listed price from a product page",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			price := a.PagePrices.FetchPriceFromPage(cmd.Context(), args[0])
			if price == nil {
				return fmt.Errorf("no price found on %s", args[0])
			}
			return printJSON(cmd.OutOrStdout(), price)
		}),
	}
}

func searchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search retailer prices for a product",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			quotes, err := a.Search.SearchPrices(cmd.Context(), strings.Join(args, " "), a.Providers.Search, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), quotes)
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", usecase.DefaultMaxResults, "maximum number of quotes")
	return cmd
}

func imageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "image <file>",
		Short: "Identify the product in an image file",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			result := a.Images.AnalyzeImage(cmd.Context(), base64.StdEncoding.EncodeToString(data), a.Providers.Vision)
			return printJSON(cmd.OutOrStdout(), result)
		}),
	}
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Show which providers are configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), cfg.Providers().Status())
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
