package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeMapsNested(t *testing.T) {
	base := map[string]interface{}{
		"api":    map[string]interface{}{"base_url": "http://a", "timeout": "5s"},
		"server": map[string]interface{}{"port": ":8080"},
	}
	env := map[string]interface{}{
		"api": map[string]interface{}{"base_url": "http://b"},
	}

	got := mergeMaps(base, env)
	assert.Equal(t, map[string]interface{}{"base_url": "http://b", "timeout": "5s"}, got["api"])
	assert.Equal(t, map[string]interface{}{"port": ":8080"}, got["server"])
	// inputs untouched
	assert.Equal(t, "http://a", base["api"].(map[string]interface{})["base_url"])
}

func TestSubstituteEnvVars(t *testing.T) {
	cfg := map[string]interface{}{
		"db":   map[string]interface{}{"password": "${DB_PASSWORD}", "port": 5432},
		"name": "plain",
	}
	got := substituteEnvVars(cfg, map[string]string{"DB_PASSWORD": "pw"})
	assert.Equal(t, "pw", got["db"].(map[string]interface{})["password"])
	assert.Equal(t, 5432, got["db"].(map[string]interface{})["port"])
	assert.Equal(t, "plain", got["name"])
}

func TestDecodeDurations(t *testing.T) {
	var out struct {
		API APIConfig `yaml:"api"`
	}
	err := Decode(map[string]interface{}{"api": map[string]interface{}{"base_url": "http://x", "timeout": "3s"}}, &out)
	assert.NoError(t, err)
	assert.Equal(t, "http://x", out.API.BaseURL)
	assert.Equal(t, "3s", out.API.Timeout.String())
}

func TestDBConfigDSN(t *testing.T) {
	c := DBConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "taskhub"}
	assert.Equal(t, "postgres://u:p@db:5432/taskhub?sslmode=disable", c.DSN())
}
