package testmongo

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const defaultImage = "mongo:7"

// Database starts a disposable MongoDB container and returns an empty
// database on it named after the test. Skipped under -short.
func Database(tb testing.TB) *mongo.Database {
	tb.Helper()
	if testing.Short() {
		tb.Skip("requires docker")
	}

	ctx := context.Background()
	image := os.Getenv("CASE_RECORDER_TEST_MONGO_IMAGE")
	if image == "" {
		image = defaultImage
	}
	container, err := mongodb.Run(ctx, image)
	if err != nil {
		tb.Fatalf("start mongodb container: %v", err)
	}
	tb.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := container.Terminate(ctx); err != nil {
			tb.Errorf("terminate mongodb container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		tb.Fatalf("build mongodb connection string: %v", err)
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		tb.Fatalf("connect mongodb: %v", err)
	}
	tb.Cleanup(func() {
		// the store under test may already have disconnected
		_ = client.Disconnect(context.Background())
	})
	return client.Database(databaseName(tb.Name()))
}

func databaseName(test string) string {
	name := strings.NewReplacer("/", "_", " ", "_", ".", "_").Replace(test)
	if len(name) > 60 {
		name = name[:60]
	}
	return strings.ToLower(name)
}
