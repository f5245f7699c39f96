// Command satchel-janitor is the Lambda function subscribed to the skeleton
// table's stream. It removes the content partitions of deleted folders.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/jacentio/satchel/internal/config"
	"github.com/jacentio/satchel/store"
	"github.com/jacentio/satchel/stream"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(config.Options{})
	if err != nil {
		return err
	}
	logger, err := cfg.Logger(os.Stdout)
	if err != nil {
		return err
	}

	client, err := store.NewClient(ctx, cfg.Endpoint())
	if err != nil {
		return err
	}
	s := store.NewWithLogger(client, cfg.StoreConfig(), logger)

	h := stream.NewHandler(s, logger)
	lambda.Start(h.HandleSkeletonRemove)
	return nil
}
