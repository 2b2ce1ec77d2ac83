package logger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactBody(t *testing.T) {
	body := []byte(`{
		"userName": "alice",
		"password": "hunter22",
		"nested": {"oldPassword": "abc", "list": [{"Password": "xyzxyz"}]}
	}`)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(RedactBody(body), &doc))

	assert.Equal(t, "alice", doc["userName"])
	assert.Equal(t, "********", doc["password"])

	nested := doc["nested"].(map[string]interface{})
	assert.Equal(t, "***", nested["oldPassword"])

	list := nested["list"].([]interface{})
	entry := list[0].(map[string]interface{})
	assert.Equal(t, "******", entry["Password"])
}

func TestRedactBodyNonStringValues(t *testing.T) {
	body := []byte(`{"password": 12345, "flags": {"passwordSet": true, "pin_password": null}}`)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(RedactBody(body), &doc))

	assert.Equal(t, "********", doc["password"])
	flags := doc["flags"].(map[string]interface{})
	assert.Equal(t, "********", flags["passwordSet"])
	assert.Equal(t, "********", flags["pin_password"])
}

func TestRedactBodyNonJSON(t *testing.T) {
	body := []byte("not json at all")
	assert.Equal(t, body, RedactBody(body))
}

func TestRedactBodyNoPasswordFields(t *testing.T) {
	body := []byte(`{"userName":"alice","active":true}`)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(RedactBody(body), &doc))
	assert.Equal(t, "alice", doc["userName"])
	assert.Equal(t, true, doc["active"])
}
