package filestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stdimage/internal/models"
)

func TestFromConfig(t *testing.T) {
	b, err := FromConfig(models.StorageConfig{Backend: "memory", BaseURL: "/media/"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, b)

	root := t.TempDir()
	b, err = FromConfig(models.StorageConfig{Backend: "filesystem", Path: root, BaseURL: "/media/"})
	require.NoError(t, err)
	assert.Equal(t, "/media/img/a.jpg", b.URL("img/a.jpg"))

	b, err = FromConfig(models.StorageConfig{
		Backend: "s3",
		BaseURL: "/media/",
		S3:      models.S3Config{Bucket: "media", Prefix: "uploads", Region: "eu-west-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://media.s3.amazonaws.com/uploads/img/a.jpg", b.URL("img/a.jpg"))

	_, err = FromConfig(models.StorageConfig{Backend: "s3"})
	assert.ErrorIs(t, err, models.ErrConfiguration)

	_, err = FromConfig(models.StorageConfig{Backend: "ftp"})
	assert.ErrorIs(t, err, models.ErrConfiguration)
}
