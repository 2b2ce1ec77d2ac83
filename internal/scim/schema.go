// Package scim implements the SCIM 2.0 protocol surface per RFC 7643/7644:
// wire-level resource schemas, adapters between the wire form and the identity
// store's records, PATCH semantics, and the HTTP dispatcher.
package scim

import "strings"

// Canonical SCIM 2.0 schema URNs (RFC 7643, RFC 7644).
const (
	SchemaUser                  = "urn:ietf:params:scim:schemas:core:2.0:User"
	SchemaGroup                 = "urn:ietf:params:scim:schemas:core:2.0:Group"
	SchemaListResponse          = "urn:ietf:params:scim:api:messages:2.0:ListResponse"
	SchemaError                 = "urn:ietf:params:scim:api:messages:2.0:Error"
	SchemaPatchOp               = "urn:ietf:params:scim:api:messages:2.0:PatchOp"
	SchemaSearchRequest         = "urn:ietf:params:scim:api:messages:2.0:SearchRequest"
	SchemaResourceType          = "urn:ietf:params:scim:schemas:core:2.0:ResourceType"
	SchemaServiceProviderConfig = "urn:ietf:params:scim:schemas:core:2.0:ServiceProviderConfig"

	// Vendor extension namespaces for the attributes the core schema does not
	// cover.
	SchemaUserExtension  = "urn:scimgate:schemas:extension:User:1.0"
	SchemaGroupExtension = "urn:scimgate:schemas:extension:Group:1.0"
)

// UserResource is the wire form of a User. Active is a pointer so an absent
// key can be told apart from an explicit false. Password is accepted inbound
// and never rendered back out.
type UserResource struct {
	Schemas     []string       `json:"schemas"`
	ID          string         `json:"id,omitempty"`
	UserName    string         `json:"userName"`
	Name        *Name          `json:"name,omitempty"`
	DisplayName string         `json:"displayName,omitempty"`
	Emails      []Email        `json:"emails,omitempty"`
	Active      *bool          `json:"active,omitempty"`
	Password    string         `json:"password,omitempty"`
	Groups      []GroupRef     `json:"groups,omitempty"`
	Extension   *UserExtension `json:"urn:scimgate:schemas:extension:User:1.0,omitempty"`
	Meta        *Meta          `json:"meta,omitempty"`
}

// Name is the SCIM name complex attribute.
type Name struct {
	GivenName  string `json:"givenName,omitempty"`
	FamilyName string `json:"familyName,omitempty"`
	Formatted  string `json:"formatted,omitempty"`
}

// Email is a SCIM email entry.
type Email struct {
	Value   string `json:"value"`
	Type    string `json:"type,omitempty"`
	Primary bool   `json:"primary,omitempty"`
}

// GroupRef points from a user at one of its groups.
type GroupRef struct {
	Value   string `json:"value"`
	Display string `json:"display,omitempty"`
}

// UserExtension carries the profile attributes under the vendor extension
// URN.
type UserExtension struct {
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Department  string `json:"department,omitempty"`
	CompanyName string `json:"companyName,omitempty"`
	Country     string `json:"country,omitempty"`
	OptIn       string `json:"optIn,omitempty"`
}

// GroupResource is the wire form of a Group. Members is a pointer to a slice
// so "key absent" (leave membership alone) can be told apart from "key present
// with an empty list" (clear membership).
type GroupResource struct {
	Schemas     []string        `json:"schemas"`
	ID          string          `json:"id,omitempty"`
	DisplayName string          `json:"displayName"`
	Members     *[]MemberRef    `json:"members,omitempty"`
	Extension   *GroupExtension `json:"urn:scimgate:schemas:extension:Group:1.0,omitempty"`
	Meta        *Meta           `json:"meta,omitempty"`
}

// MemberRef points from a group at one of its members.
type MemberRef struct {
	Value   string `json:"value"`
	Display string `json:"display,omitempty"`
}

// GroupExtension is the static description block rendered on every group.
type GroupExtension struct {
	Description string `json:"description,omitempty"`
}

// Meta is the SCIM meta complex attribute.
type Meta struct {
	ResourceType string `json:"resourceType,omitempty"`
	Location     string `json:"location,omitempty"`
	Created      string `json:"created,omitempty"`
	LastModified string `json:"lastModified,omitempty"`
}

// ListResponse is the envelope for paginated collection results.
type ListResponse struct {
	Schemas      []string      `json:"schemas"`
	TotalResults int           `json:"totalResults"`
	ItemsPerPage int           `json:"itemsPerPage"`
	StartIndex   int           `json:"startIndex"`
	Resources    []interface{} `json:"Resources"`
}

// NewListResponse builds the envelope around a page of resources.
func NewListResponse(total, startIndex int, resources []interface{}) *ListResponse {
	if resources == nil {
		resources = []interface{}{}
	}
	return &ListResponse{
		Schemas:      []string{SchemaListResponse},
		TotalResults: total,
		ItemsPerPage: len(resources),
		StartIndex:   startIndex,
		Resources:    resources,
	}
}

// SearchRequest is the body of POST /<resource>/.search.
type SearchRequest struct {
	Schemas    []string `json:"schemas"`
	Filter     string   `json:"filter"`
	StartIndex int      `json:"startIndex,omitempty"`
	Count      *int     `json:"count,omitempty"`
}

// OpCode enumerates the PATCH operations. Unknown strings decode to
// OpUnsupported rather than failing at parse time, so the dispatcher can
// answer with NotImplemented.
type OpCode int

const (
	OpUnsupported OpCode = iota
	OpAdd
	OpRemove
	OpReplace
)

// ParseOpCode normalizes a wire op string. SCIM op values are
// case-insensitive.
func ParseOpCode(s string) OpCode {
	switch strings.ToLower(s) {
	case "add":
		return OpAdd
	case "remove":
		return OpRemove
	case "replace":
		return OpReplace
	default:
		return OpUnsupported
	}
}

func (o OpCode) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpRemove:
		return "remove"
	case OpReplace:
		return "replace"
	default:
		return "unsupported"
	}
}

// PatchRequest is the body of a PATCH request (RFC 7644 3.5.2).
type PatchRequest struct {
	Schemas    []string         `json:"schemas"`
	Operations []PatchOperation `json:"Operations"`
}

// PatchOperation is one entry of a PatchRequest. Value stays raw JSON until
// the adapter knows what shape the targeted path requires.
type PatchOperation struct {
	Op    string      `json:"op"`
	Path  string      `json:"path,omitempty"`
	Value interface{} `json:"value,omitempty"`
}

// Code returns the parsed op code.
func (p PatchOperation) Code() OpCode {
	return ParseOpCode(p.Op)
}

// ResourceType is the metadata document served under /ResourceTypes
// (RFC 7643 6).
type ResourceType struct {
	Schemas     []string `json:"schemas"`
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Endpoint    string   `json:"endpoint"`
	Description string   `json:"description,omitempty"`
	Schema      string   `json:"schema"`
	Meta        *Meta    `json:"meta,omitempty"`
}
