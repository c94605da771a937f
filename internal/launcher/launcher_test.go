package launcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildArgsIncludesHeadlessFlagsOnlyWhenHeadless(t *testing.T) {
	cfg := Config{Headless: true, ViewportWidth: 1280, ViewportHeight: 720, Port: 9222, UserDataDir: "/tmp/x"}
	args := buildArgs("/usr/bin/google-chrome", cfg)

	assert.Contains(t, args, "--headless=new")
	assert.Contains(t, args, "--disable-gpu")
	assert.Contains(t, args, "--remote-debugging-port=9222")
	assert.Contains(t, args, "--user-data-dir=/tmp/x")
	assert.Contains(t, args, "--window-size=1280,720")
}

func TestBuildArgsOmitsHeadlessFlagsWhenNotHeadless(t *testing.T) {
	cfg := Config{ViewportWidth: 1280, ViewportHeight: 720, Port: 9222, UserDataDir: "/tmp/x"}
	args := buildArgs("/usr/bin/google-chrome", cfg)

	assert.NotContains(t, args, "--headless=new")
}

func TestConfigWithDefaultsFillsUnsetFields(t *testing.T) {
	cfg := Config{}.withDefaults()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 9222, cfg.Port)
	assert.Equal(t, 1280, cfg.ViewportWidth)
	assert.Equal(t, 720, cfg.ViewportHeight)
	assert.Equal(t, 10, cfg.RetryAttempts)
	assert.NotEmpty(t, cfg.UserDataDir)
}

func TestResolveBinaryErrorsWhenChromeNotFound(t *testing.T) {
	t.Setenv("PATH", "")
	saved := fallbackPaths
	fallbackPaths = nil
	defer func() { fallbackPaths = saved }()

	_, err := resolveBinary()
	assert.Error(t, err)
}
