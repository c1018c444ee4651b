// Package testfixtures runs the backing services tests need.
package testfixtures

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	mongoImage = "mongo:7"

	// MongoURIEnv points tests at an existing server instead of a container.
	MongoURIEnv = "MONGOVIEW_TEST_MONGO_URI"
)

// RunMongoTestContainer returns the uri of a MongoDB server for t. It uses
// MONGOVIEW_TEST_MONGO_URI when set and otherwise starts a mongo container
// that is stopped when t finishes. t is skipped when no Docker daemon is
// reachable.
func RunMongoTestContainer(t testing.TB) string {
	t.Helper()
	if uri := os.Getenv(MongoURIEnv); uri != "" {
		return uri
	}

	dockerClient, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		dockerClient.Close()
	})
	if _, err := dockerClient.Ping(context.Background()); err != nil {
		t.Skipf("docker unavailable and %s not set: %v", MongoURIEnv, err)
	}

	allImages, err := dockerClient.ImageList(context.Background(), image.ListOptions{
		All: true,
	})
	require.NoError(t, err)

	foundMongoImage := false

AllImages:
	for _, image := range allImages {
		for _, tag := range image.RepoTags {
			if strings.Contains(tag, mongoImage) {
				foundMongoImage = true
				break AllImages
			}
		}
	}

	if !foundMongoImage {
		t.Logf("Pulling image %s", mongoImage)
		reader, err := dockerClient.ImagePull(context.Background(), mongoImage, image.PullOptions{})
		require.NoError(t, err)

		_, err = io.Copy(io.Discard, reader) // consume the image pull output to make sure it's done
		require.NoError(t, err)
	}

	containerCfg := container.Config{
		ExposedPorts: nat.PortSet{
			nat.Port("27017/tcp"): {},
		},
		Image: mongoImage,
	}

	hostCfg := container.HostConfig{
		AutoRemove:      true,
		PublishAllPorts: true,
	}

	name := "mongo-" + ulid.Make().String()

	cont, err := dockerClient.ContainerCreate(context.Background(), &containerCfg, &hostCfg, nil, nil, name)
	require.NoError(t, err, "failed to create mongo docker container")

	t.Cleanup(func() {
		t.Logf("stopping container %s", name)
		timeoutSec := 5

		err := dockerClient.ContainerStop(context.Background(), cont.ID, container.StopOptions{Timeout: &timeoutSec})
		if err != nil && !errdefs.IsNotFound(err) {
			t.Logf("failed to stop mongo container: %v", err)
		}
	})

	err = dockerClient.ContainerStart(context.Background(), cont.ID, container.StartOptions{})
	require.NoError(t, err, "failed to start mongo container")

	containerJSON, err := dockerClient.ContainerInspect(context.Background(), cont.ID)
	require.NoError(t, err)

	m, ok := containerJSON.NetworkSettings.Ports["27017/tcp"]
	if !ok || len(m) == 0 {
		require.Fail(t, "failed to get host port mapping from mongo container")
	}

	uri := "mongodb://localhost:" + m[0].HostPort + "/?directConnection=true"
	require.NoError(t, waitForMongo(uri), "failed to connect to mongo container")
	return uri
}

// waitForMongo pings uri until the server answers or a timeout occurs.
func waitForMongo(uri string) error {
	c, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return err
	}
	defer c.Disconnect(context.Background())

	backoffPolicy := backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(30 * time.Second))
	return backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return c.Ping(ctx, readpref.Primary())
	}, backoffPolicy)
}
