package notify

import "testing"

func TestFlushURL(t *testing.T) {
	testCases := []struct {
		name        string
		server      string
		environment string
		expected    string
	}{
		{
			name:        "plain",
			server:      "puppet.example.com:8140",
			environment: "production",
			expected:    "https://puppet.example.com:8140/puppet-admin-api/v1/environment-cache?environment=production",
		},
		{
			name:        "query escaping",
			server:      "puppet.example.com:8140",
			environment: "a&b",
			expected:    "https://puppet.example.com:8140/puppet-admin-api/v1/environment-cache?environment=a%26b",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FlushURL(tc.server, tc.environment); got != tc.expected {
				t.Errorf("FlushURL = %q, expected %q", got, tc.expected)
			}
		})
	}
}
