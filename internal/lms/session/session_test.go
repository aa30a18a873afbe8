package session

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromCookieHeader(t *testing.T) {
	s, err := FromCookieHeader("Cookie: MoodleSession=abc123; MOODLEID1_=xyz")
	require.NoError(t, err)
	require.Equal(t, []string{"MoodleSession", "MOODLEID1_"}, s.Names())
	require.False(t, s.Empty())
	require.Equal(t, "session(MoodleSession,MOODLEID1_)", s.String())

	empty, err := FromCookieHeader("   ")
	require.NoError(t, err)
	require.True(t, empty.Empty())
}

func TestFromMapAndJar(t *testing.T) {
	s := FromMap(map[string]string{"b": "override", "c": "3", "a": "2"})
	require.Equal(t, []string{"a", "b", "c"}, s.Names())

	origin, _ := url.Parse("https://lms.example.com")
	jar, err := s.Jar(origin)
	require.NoError(t, err)

	values := map[string]string{}
	for _, c := range jar.Cookies(origin) {
		values[c.Name] = c.Value
	}
	require.Equal(t, map[string]string{"a": "2", "b": "override", "c": "3"}, values)

	other, _ := url.Parse("https://other.example.com")
	require.Empty(t, jar.Cookies(other))
}
