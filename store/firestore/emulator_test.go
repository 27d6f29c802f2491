package firestore_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	emulatorImage  = "gcr.io/google.com/cloudsdktool/google-cloud-cli:emulators"
	emulatorPort   = "8080"
	emulatorEnvVar = "FIRESTORE_EMULATOR_HOST"
	testProjectID  = "invoice-reminder-test"
)

// emulatorHost returns the address of a Firestore emulator. An emulator
// named by FIRESTORE_EMULATOR_HOST is used as is, otherwise one is started
// in a container that lives until the test ends.
func emulatorHost(t *testing.T) string {
	t.Helper()

	if host := os.Getenv(emulatorEnvVar); host != "" {
		return host
	}

	if testing.Short() {
		t.Skip("Skipping firestore emulator test in short mode")
	}

	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        emulatorImage,
			ExposedPorts: []string{emulatorPort + "/tcp"},
			Cmd: []string{
				"gcloud", "beta", "emulators", "firestore", "start",
				"--host-port=0.0.0.0:" + emulatorPort,
			},
			WaitingFor: wait.ForLog("Dev App Server is now running").
				WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start firestore emulator")

	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, emulatorPort)
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, port.Port())
}

// newEmulatorClient connects to the emulator. The client library switches to
// the emulator when FIRESTORE_EMULATOR_HOST is set.
func newEmulatorClient(t *testing.T) *firestore.Client {
	t.Helper()

	t.Setenv(emulatorEnvVar, emulatorHost(t))

	client, err := firestore.NewClient(context.Background(), testProjectID)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}
