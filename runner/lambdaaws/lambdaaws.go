package lambdaaws

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"

	"github.com/gosom/invoice-reminder/runner"
)

var _ runner.Runner = (*lambdaAwsRunner)(nil)

type lambdaAwsRunner struct {
	app *runner.App
}

func New(ctx context.Context, cfg *runner.Config) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeAwsLambda {
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}

	app, err := runner.NewApp(ctx, &cfg.App)
	if err != nil {
		return nil, err
	}

	return &lambdaAwsRunner{app: app}, nil
}

// Run blocks serving invocations. lambda.Start never returns.
func (l *lambdaAwsRunner) Run(context.Context) error {
	lambda.Start(Handler(l.app.Handler))

	return nil
}

func (l *lambdaAwsRunner) Close(ctx context.Context) error {
	return l.app.Close(ctx)
}

// Handler adapts an http.Handler to API Gateway proxy invocations.
func Handler(h http.Handler) func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return httpadapter.New(h).ProxyWithContext
}
