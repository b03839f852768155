package context

import "golang.org/x/sync/errgroup"

// processAllConcurrent fans the per-group process_events calls out over
// an errgroup (§4.3, §9 domain stack: concurrent event processing is a
// hosted-Go convenience the bare-metal original has no scheduler to
// need). Each group's own lock still serializes its own process_events
// calls; only the registry lookup is shared read-only state here.
func (c *Context) processAllConcurrent(ids []uint16) error {
	var eg errgroup.Group

	for _, id := range ids {
		id := id

		eg.Go(func() error {
			if g, ok := c.group(id); ok {
				c.processOneGroup(g)
			}

			return nil
		})
	}

	return eg.Wait()
}
