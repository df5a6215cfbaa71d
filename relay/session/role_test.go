package session

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		query   string
		want    Binding
		wantErr error
	}{
		{name: "producer", path: "/create", query: "sessionId=abc", want: Binding{Role: RoleProducer, SessionID: "abc"}},
		{name: "consumer", path: "/join", query: "sessionId=abc", want: Binding{Role: RoleConsumer, SessionID: "abc"}},
		{name: "prefix match", path: "/create/extra", query: "sessionId=x", want: Binding{Role: RoleProducer, SessionID: "x"}},
		{name: "first value wins", path: "/join", query: "sessionId=a&sessionId=b", want: Binding{Role: RoleConsumer, SessionID: "a"}},
		{name: "missing id on create", path: "/create", query: "", wantErr: ErrMissingSessionID},
		{name: "empty id on join", path: "/join", query: "sessionId=", wantErr: ErrMissingSessionID},
		{name: "unknown path", path: "/watch", query: "sessionId=abc", wantErr: ErrUnrecognizedRoute},
		{name: "root", path: "/", query: "sessionId=abc", wantErr: ErrUnrecognizedRoute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, err := url.ParseQuery(tt.query)
			require.NoError(t, err)

			got, err := Classify(tt.path, query)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, Binding{}, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "producer", RoleProducer.String())
	assert.Equal(t, "consumer", RoleConsumer.String())
	assert.Equal(t, "unknown", Role(0).String())
}
