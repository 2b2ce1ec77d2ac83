package scim

// ServiceProviderConfig is the capability-negotiation document (RFC 7643 5).
// It is rebuilt per request from configuration and holds no mutable state.
type ServiceProviderConfig struct {
	Schemas               []string               `json:"schemas"`
	DocumentationURI      string                 `json:"documentationUri,omitempty"`
	Patch                 Supported              `json:"patch"`
	Bulk                  BulkSupport            `json:"bulk"`
	Filter                FilterSupport          `json:"filter"`
	ChangePassword        Supported              `json:"changePassword"`
	Sort                  Supported              `json:"sort"`
	ETag                  Supported              `json:"etag"`
	AuthenticationSchemes []AuthenticationScheme `json:"authenticationSchemes"`
	Meta                  *Meta                  `json:"meta,omitempty"`
}

// Supported is a single capability flag.
type Supported struct {
	Supported bool `json:"supported"`
}

// BulkSupport advertises bulk-operation limits.
type BulkSupport struct {
	Supported      bool `json:"supported"`
	MaxOperations  int  `json:"maxOperations"`
	MaxPayloadSize int  `json:"maxPayloadSize"`
}

// FilterSupport advertises filtering limits.
type FilterSupport struct {
	Supported  bool `json:"supported"`
	MaxResults int  `json:"maxResults"`
}

// AuthenticationScheme describes one supported authentication mechanism.
type AuthenticationScheme struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SpecURI     string `json:"specUri,omitempty"`
	Primary     bool   `json:"primary,omitempty"`
}

// NewServiceProviderConfig builds the capability document. Bulk, sorting, and
// ETags are unsupported; filtering is capped at the default page size.
func NewServiceProviderConfig(base, documentationURI string) *ServiceProviderConfig {
	return &ServiceProviderConfig{
		Schemas:          []string{SchemaServiceProviderConfig},
		DocumentationURI: documentationURI,
		Patch:            Supported{Supported: true},
		Bulk: BulkSupport{
			Supported:      false,
			MaxOperations:  1000,
			MaxPayloadSize: 1048576,
		},
		Filter: FilterSupport{
			Supported:  true,
			MaxResults: defaultCount,
		},
		ChangePassword: Supported{Supported: true},
		Sort:           Supported{Supported: false},
		ETag:           Supported{Supported: false},
		AuthenticationSchemes: []AuthenticationScheme{
			{
				Type:        "oauthbearertoken",
				Name:        "OAuth Bearer Token",
				Description: "Authentication scheme using the OAuth Bearer Token standard",
				SpecURI:     "https://www.rfc-editor.org/info/rfc6750",
				Primary:     true,
			},
		},
		Meta: &Meta{
			ResourceType: "ServiceProviderConfig",
			Location:     base + "/ServiceProviderConfig",
		},
	}
}
