package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/saiset-co/sai-docs/service"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "sai-docs",
		Short: "Markdown documentation server with a render cache",
	}

	var (
		configPath string
		docsRoot   string
		host       string
		port       int
	)

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the documentation directory over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := service.NewService(context.Background(), configPath,
				service.WithDocsRoot(docsRoot),
				service.WithListenAddr(host, port),
			)
			if err != nil {
				return err
			}
			return svc.Start()
		},
	}
	serve.Flags().StringVarP(&configPath, "config", "c", "config.yml", "path to the service configuration file")
	serve.Flags().StringVar(&docsRoot, "root", "", "documentation root directory (overrides config)")
	serve.Flags().StringVar(&host, "host", "", "listen host (overrides config)")
	serve.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("sai-docs", version)
		},
	}

	root.AddCommand(serve, versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
