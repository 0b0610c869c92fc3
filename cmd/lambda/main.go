// Package main serves the webhook router from AWS Lambda behind a Function URL.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/nutrition-bot/internal/app"
	"github.com/nutrition-bot/internal/config"
	"github.com/nutrition-bot/internal/logging"
)

var adapter *httpadapter.HandlerAdapterV2

// init runs once per Lambda container (cold start)
func init() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))

	// Connections live for the container lifetime and are never closed here.
	application, err := app.New(context.Background(), cfg)
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to initialize application")
	}

	adapter = httpadapter.NewV2(application.Server.Handler())
}

// Handler is the entrypoint for Function URL (payload format 2.0) events
func Handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	return adapter.ProxyWithContext(ctx, req)
}

func main() {
	lambda.Start(Handler)
}
