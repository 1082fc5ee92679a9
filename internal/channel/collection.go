package channel

import (
	"github.com/coachpo/herald/errs"
	"github.com/coachpo/herald/pkg/delivery"
)

// Collection tracks every live channel so a subscription key can be resolved
// to its owner without knowing whether it belongs to an event or a group.
type Collection struct {
	channels []*Channel
}

// NewCollection constructs an empty collection.
func NewCollection() *Collection {
	return new(Collection)
}

// Add tracks c.
func (col *Collection) Add(c *Channel) {
	col.channels = append(col.channels, c)
}

// Owner returns the channel holding key.
func (col *Collection) Owner(key delivery.Key) (*Channel, bool) {
	for _, c := range col.channels {
		if c.HasKey(key) {
			return c, true
		}
	}
	return nil, false
}

// Destroy removes key from whichever channel owns it and returns that channel.
func (col *Collection) Destroy(key delivery.Key) (*Channel, error) {
	c, ok := col.Owner(key)
	if !ok {
		return nil, errs.NotFound("channel/destroy", key.String(), "subscription key does not exist")
	}
	if err := c.Destroy(key); err != nil {
		return nil, err
	}
	return c, nil
}

// Len returns the number of tracked channels.
func (col *Collection) Len() int {
	return len(col.channels)
}
