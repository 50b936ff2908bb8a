package pubsub

import "errors"

// ErrEmptyChannel is returned by NewRegistration when the channel name is empty.
var ErrEmptyChannel = errors.New("pubsub: channel name must not be empty")

// Registration names the channel a Listener subscribes to and the dataset the
// notifications are about. It is immutable.
type Registration struct {
	dataset string
	channel string
}

// NewRegistration returns the registration of channel for dataset. The dataset is a
// descriptive label and may be empty; the channel may not.
func NewRegistration(dataset, channel string) (Registration, error) {
	if channel == "" {
		return Registration{}, ErrEmptyChannel
	}
	return Registration{dataset: dataset, channel: channel}, nil
}

// Dataset returns the dataset label.
func (r Registration) Dataset() string { return r.dataset }

// Channel returns the channel name.
func (r Registration) Channel() string { return r.channel }

func (r Registration) String() string {
	if r.dataset == "" {
		return r.channel
	}
	return r.dataset + "/" + r.channel
}
