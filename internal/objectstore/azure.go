package objectstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"foresight/internal/config"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
)

// AzureStore keeps objects in one Azure Blob container. Bucket names the container.
type AzureStore struct {
	client    *azblob.Client
	container string
}

func NewAzureStore(cfg config.ObjectStoreConfig) (*AzureStore, error) {
	if cfg.AzureAccount == "" || cfg.AzureKey == "" || cfg.Bucket == "" {
		return nil, errors.New("azure account, key and container required for azure object store")
	}
	credential, err := azblob.NewSharedKeyCredential(cfg.AzureAccount, cfg.AzureKey)
	if err != nil {
		return nil, fmt.Errorf("build shared key credential: %w", err)
	}
	url := cfg.Endpoint
	if url == "" {
		url = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AzureAccount)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(url, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}
	return &AzureStore{client: client, container: cfg.Bucket}, nil
}

func (a *AzureStore) blobClient(key string) *blob.Client {
	return a.client.ServiceClient().NewContainerClient(a.container).NewBlobClient(key)
}

func (a *AzureStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := a.client.UploadBuffer(ctx, a.container, key, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	return err
}

func (a *AzureStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := a.blobClient(key).GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return false, nil
	}
	return false, err
}

func (a *AzureStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultSignedURLTTL
	}
	url, err := a.blobClient(key).GetSASURL(sas.BlobPermissions{Read: true}, time.Now().UTC().Add(ttl), nil)
	if err != nil {
		return "", fmt.Errorf("sign %s: %w", key, err)
	}
	return url, nil
}

func (a *AzureStore) Delete(ctx context.Context, key string) error {
	_, err := a.client.DeleteBlob(ctx, a.container, key, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil
	}
	return err
}
