package smartcar

// API bundles the OAuth flows and the vehicle API client behind one value,
// which is what the assistant pipeline consumes.
type API struct {
	*Auth
	*Client
}

// NewAPI creates an API facade from its two halves.
func NewAPI(auth *Auth, client *Client) *API {
	return &API{Auth: auth, Client: client}
}
