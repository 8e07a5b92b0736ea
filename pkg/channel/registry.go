package channel

import "fmt"

// ProviderRegistry holds the configured provider adapters, keyed by slug.
type ProviderRegistry struct {
	providers map[string]Provider
}

// NewProviderRegistry creates an empty provider registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]Provider)}
}

// Register adds a provider, keyed by its slug.
func (r *ProviderRegistry) Register(p Provider) {
	r.providers[p.Slug()] = p
}

// Get returns the provider with the given slug.
func (r *ProviderRegistry) Get(slug string) (Provider, error) {
	p, ok := r.providers[slug]
	if !ok {
		return nil, fmt.Errorf("provider %q not registered", slug)
	}
	return p, nil
}

// All returns all registered providers, order unspecified.
func (r *ProviderRegistry) All() []Provider {
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	return out
}

// InquiryChannelRegistry holds the configured inquiry channel adapters,
// keyed by channel slug.
type InquiryChannelRegistry struct {
	channels map[string]InquiryChannel
}

// NewInquiryChannelRegistry creates an empty inquiry channel registry.
func NewInquiryChannelRegistry() *InquiryChannelRegistry {
	return &InquiryChannelRegistry{channels: make(map[string]InquiryChannel)}
}

// Register adds an inquiry channel, keyed by its slug.
func (r *InquiryChannelRegistry) Register(c InquiryChannel) {
	r.channels[c.Slug()] = c
}

// Get returns the inquiry channel with the given slug.
func (r *InquiryChannelRegistry) Get(slug string) (InquiryChannel, error) {
	c, ok := r.channels[slug]
	if !ok {
		return nil, fmt.Errorf("inquiry channel %q not registered", slug)
	}
	return c, nil
}

// All returns all registered inquiry channels, order unspecified.
func (r *InquiryChannelRegistry) All() []InquiryChannel {
	out := make([]InquiryChannel, 0, len(r.channels))
	for _, c := range r.channels {
		out = append(out, c)
	}
	return out
}
