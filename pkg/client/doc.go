/*
Package client provides a Go client for the daemon's HTTP API.

One method per route, each answering decoded Go values instead of raw
envelopes. The CLI is the primary consumer; a parent pool fanning tasks
out to child pools is the other.

# Usage

	c := client.New("127.0.0.1:9998")

	inserted, err := c.Submit([]client.TaskRequest{
	    {Cmd: []string{"ffmpeg", "-i", "in.mov", "out.mp4"}},
	})
	if err != nil {
	    return err
	}

	slim, err := c.Get(inserted[0].ID)
	raw, err := c.Log(inserted[0].ID)
	_, err = c.Interact(inserted[0].ID, "terminate")

# Error Handling

Non-OK answers become errors carrying the daemon's envelope message, so
callers see "The task is finished -- nothing to do here" rather than a
bare status code. Submit is the exception worth knowing: on a failed
batch it returns the records inserted before the failure alongside the
error, matching the daemon's partial-insert contract.

# Paths

The client targets the daemon's default route layout. Deployments that
remap the endpoint table serve /proc_pool/help/endpoints for discovery,
but this client does not chase remapped paths.

# See Also

  - pkg/api for the surface this client speaks to
  - cmd/procpool for the CLI built on it
*/
package client
