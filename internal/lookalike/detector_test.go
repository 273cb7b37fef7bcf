package lookalike

import (
	"testing"

	"go.uber.org/zap"
)

func TestMatchFlagsNearMissDomains(t *testing.T) {
	brands := []string{"paypal.com", "google.com", "microsoft.com", "apple.com", "amazon.com"}
	detector := NewDetector(true, brands, zap.NewNop())

	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "digit swap on short brand",
			url:  "https://paypa1.com/login",
			want: "paypal.com",
		},
		{
			name: "doubled letter",
			url:  "http://gooogle.com/search",
			want: "google.com",
		},
		{
			name: "digit swap on medium brand",
			url:  "https://micros0ft.com/update",
			want: "microsoft.com",
		},
		{
			name: "digit swap with subdomain prefix",
			url:  "https://secure.amaz0n.com/signin",
			want: "amazon.com",
		},
		{
			name: "genuine brand domain",
			url:  "https://paypal.com/home",
			want: "",
		},
		{
			name: "genuine brand subdomain",
			url:  "https://mail.google.com/mail",
			want: "",
		},
		{
			name: "unrelated domain",
			url:  "https://example.com/page",
			want: "",
		},
		{
			name: "distance beyond threshold",
			url:  "https://paypivot.com/",
			want: "",
		},
		{
			name: "unparseable url",
			url:  "://not-a-url",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detector.Match(tt.url)
			if got != tt.want {
				t.Errorf("Expected brand %q, got %q", tt.want, got)
			}
		})
	}
}

func TestMatchDisabled(t *testing.T) {
	detector := NewDetector(false, []string{"paypal.com"}, zap.NewNop())
	if got := detector.Match("https://paypa1.com/"); got != "" {
		t.Errorf("Expected no match when disabled, got %q", got)
	}
}

func TestMatchCaseInsensitive(t *testing.T) {
	detector := NewDetector(true, []string{"paypal.com"}, zap.NewNop())
	if got := detector.Match("https://PayPa1.COM/login"); got != "paypal.com" {
		t.Errorf("Expected paypal.com, got %q", got)
	}
}

func TestDistanceThreshold(t *testing.T) {
	tests := []struct {
		length int
		want   int
	}{
		{length: 8, want: 1},
		{length: 11, want: 1},
		{length: 12, want: 2},
		{length: 15, want: 2},
		{length: 20, want: 3},
	}

	for _, tt := range tests {
		if got := distanceThreshold(tt.length); got != tt.want {
			t.Errorf("Expected threshold %d for length %d, got %d", tt.want, tt.length, got)
		}
	}
}
