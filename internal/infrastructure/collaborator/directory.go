package collaborator

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/domain/subscription"
)

// DirectoryClient reads subscribers from the member directory
type DirectoryClient struct {
	client *Client
}

// NewDirectoryClient creates a new directory client
func NewDirectoryClient(client *Client) *DirectoryClient {
	return &DirectoryClient{client: client}
}

type subscriberResponse struct {
	Ref            string `json:"ref"`
	Status         string `json:"status"`
	PortalEligible bool   `json:"portal_eligible"`
}

// GetSubscriber implements subscription.Directory
func (d *DirectoryClient) GetSubscriber(ctx context.Context, ref string) (*subscription.SubscriberInfo, error) {
	var resp subscriberResponse
	err := d.client.do(ctx, http.MethodGet, "/subscribers/"+url.PathEscape(ref), "", nil, &resp)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, shared.NewProcessingError("DIRECTORY_UNAVAILABLE", "directory lookup failed", err)
	}
	if resp.Ref == "" {
		resp.Ref = ref
	}
	return &subscription.SubscriberInfo{
		Ref:            resp.Ref,
		Status:         subscription.SubscriberStatus(resp.Status),
		PortalEligible: resp.PortalEligible,
	}, nil
}

var _ subscription.Directory = (*DirectoryClient)(nil)
