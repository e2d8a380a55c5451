package objectstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMinioClient_ListingTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer srv.Close()

	client, err := NewMinioClient(MinioConfig{
		Endpoint:        strings.TrimPrefix(srv.URL, "http://"),
		AccessKey:       "access",
		SecretKey:       "secret",
		Bucket:          "dist",
		Region:          "us-east-1",
		ResponseTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewMinioClient failed: %v", err)
	}

	start := time.Now()
	if _, err := client.ListObjects(context.Background(), "version/", ""); err == nil {
		t.Fatal("Expected listing against a stalled server to fail")
	}
	if took := time.Since(start); took > 2*time.Second {
		t.Errorf("Expected the response timeout to end the listing, took %s", took)
	}
}
