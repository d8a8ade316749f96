package docker

import (
	"context"
	"fmt"

	"github.com/moby/moby/api/types/image"
	"github.com/moby/moby/client"
)

// ListImages returns the full inspect of every image matching the filters.
func (c *Client) ListImages(ctx context.Context, filters map[string][]string) ([]image.InspectResponse, error) {
	opts := client.ImageListOptions{}
	if len(filters) > 0 {
		f := make(client.Filters)
		for key, values := range filters {
			for _, v := range values {
				f.Add(key, v)
			}
		}
		opts.Filters = f
	}

	result, err := c.api.ImageList(ctx, opts)
	if err != nil {
		return nil, err
	}

	inspects := make([]image.InspectResponse, 0, len(result.Items))
	for _, item := range result.Items {
		resp, err := c.api.ImageInspect(ctx, item.ID)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		inspects = append(inspects, resp.InspectResponse)
	}
	return inspects, nil
}

// InspectImage returns full image details by spec or ID.
func (c *Client) InspectImage(ctx context.Context, specOrID string) (image.InspectResponse, error) {
	result, err := c.api.ImageInspect(ctx, specOrID)
	return result.InspectResponse, err
}

// PullImage pulls an image by reference, waits for the pull to complete and
// returns the inspect of the pulled image.
func (c *Client) PullImage(ctx context.Context, ref string) (image.InspectResponse, error) {
	resp, err := c.api.ImagePull(ctx, ref, client.ImagePullOptions{})
	if err != nil {
		return image.InspectResponse{}, err
	}
	if err := resp.Wait(ctx); err != nil {
		return image.InspectResponse{}, err
	}
	result, err := c.api.ImageInspect(ctx, ref)
	return result.InspectResponse, err
}

// TagImage applies a new tag to an existing image.
func (c *Client) TagImage(ctx context.Context, specOrID, tag string) error {
	_, err := c.api.ImageTag(ctx, client.ImageTagOptions{Source: specOrID, Target: tag})
	return err
}

// PruneImages removes unused images and returns a human-readable summary.
// When all is false only dangling images are removed.
func (c *Client) PruneImages(ctx context.Context, all bool) (string, error) {
	dangling := "true"
	if all {
		dangling = "false"
	}
	opts := client.ImagePruneOptions{
		Filters: make(client.Filters).Add("dangling", dangling),
	}
	report, err := c.api.ImagePrune(ctx, opts)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("deleted %d images, reclaimed %d bytes",
		len(report.Report.ImagesDeleted), report.Report.SpaceReclaimed), nil
}
