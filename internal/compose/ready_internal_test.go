package compose

import (
	"reflect"
	"testing"
)

func TestParsePublishedPorts(t *testing.T) {
	cases := []struct {
		name   string
		output string
		want   []int
	}{
		{
			"json lines",
			`{"Name":"web","Ports":"0.0.0.0:8080->80/tcp"}` + "\n" + `{"Name":"db","Ports":"0.0.0.0:6379->6379/tcp"}` + "\n",
			[]int{8080, 6379},
		},
		{
			"json array",
			`[{"Ports":"0.0.0.0:8080->80/tcp"},{"Ports":"0.0.0.0:5353->53/udp"}]`,
			[]int{8080, 5353},
		},
		{
			"duplicate bindings collapse",
			`{"Ports":"0.0.0.0:8080->80/tcp, [::]:8080->80/tcp"}`,
			[]int{8080},
		},
		{"unpublished", `{"Ports":"80/tcp"}`, nil},
		{"empty", "", nil},
		{"garbage", "not json at all", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := parsePublishedPorts(tc.output); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("parsePublishedPorts(%q) = %v, want %v", tc.output, got, tc.want)
			}
		})
	}
}
