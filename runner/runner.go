package runner

import (
	"context"
	"errors"
	"flag"

	"github.com/gosom/invoice-reminder/config"
)

const (
	RunModeWeb = iota + 1
	RunModeAwsLambda
)

var (
	ErrInvalidRunMode = errors.New("invalid run mode")
)

type Runner interface {
	Run(context.Context) error
	Close(context.Context) error
}

type Config struct {
	RunMode         int
	Addr            string
	AwsLambdaRunner bool
	App             config.Config
}

// ParseConfig reads the command line flags and the environment.
func ParseConfig() (*Config, error) {
	cfg := Config{}

	flag.StringVar(&cfg.Addr, "addr", ":8080", "address to listen on for web server")
	flag.BoolVar(&cfg.AwsLambdaRunner, "aws-lambda", false, "run as AWS Lambda function behind API Gateway")

	flag.Parse()

	app, err := config.Load()
	if err != nil {
		return nil, err
	}

	cfg.App = app

	switch {
	case cfg.AwsLambdaRunner:
		cfg.RunMode = RunModeAwsLambda
	default:
		cfg.RunMode = RunModeWeb
	}

	return &cfg, nil
}
