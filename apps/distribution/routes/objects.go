package routes

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/quatton/expodist/pkg/objectstore"
)

// GetObjectURLInput defines the input for presigning a published object
type GetObjectURLInput struct {
	Key    string `query:"key" doc:"Object key, e.g. version/v1/diagnosis-keys/country/DE/date/2021-05-01" required:"true"`
	Expiry int    `query:"expiry" doc:"Link lifetime in seconds" default:"900" minimum:"1" maximum:"604800"`
}

// GetObjectURLOutput is the response for presigning a published object
type GetObjectURLOutput struct {
	Body struct {
		URL string `json:"url" doc:"Presigned download URL"`
	}
}

// RegisterObjects registers the published object routes
func RegisterObjects(api huma.API, presigner Presigner) {
	huma.Register(api, huma.Operation{
		OperationID: "get-object-url",
		Method:      http.MethodGet,
		Path:        "/objects/url",
		Summary:     "Presign a published object",
		Description: "Returns a temporary download link for a published file",
		Tags:        []string{TagObjects.String()},
	}, func(ctx context.Context, input *GetObjectURLInput) (*GetObjectURLOutput, error) {
		if presigner == nil {
			return nil, huma.Error501NotImplemented("object store does not support presigned URLs")
		}
		url, err := presigner.PresignedURL(ctx, input.Key, time.Duration(input.Expiry)*time.Second)
		if errors.Is(err, objectstore.ErrNotFound) {
			return nil, huma.Error404NotFound("object not found")
		}
		if err != nil {
			return nil, huma.Error502BadGateway("failed to presign object", err)
		}
		resp := &GetObjectURLOutput{}
		resp.Body.URL = url
		return resp, nil
	})
}
