package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDownloadURL_EscapesObjectPath(t *testing.T) {
	got := DownloadURL("farm-bucket", "products/12/1700000000.jpg", "tok")
	assert.Equal(t, "https://firebasestorage.googleapis.com/v0/b/farm-bucket/o/products%2F12%2F1700000000.jpg?alt=media&token=tok", got)
}

func TestNewGCSImageStore_RequiresBucket(t *testing.T) {
	_, err := NewGCSImageStore(context.Background(), "")
	assert.Error(t, err)
}
