package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeLimited(t *testing.T) {
	assert.Equal(t, "abc", SanitizeLimited("  abcdef ", 3))
	assert.Equal(t, "&lt;b&gt;", SanitizeLimited("<b>", 0))
	assert.Equal(t, "driver left early", SanitizeInput(" driver left early "))
}

func TestContainsSuspicious(t *testing.T) {
	assert.True(t, ContainsSuspicious("hello <SCRIPT>alert(1)</script>"))
	assert.True(t, ContainsSuspicious("${jndi:ldap://x}"))
	assert.False(t, ContainsSuspicious("paid 20 dollars, driver claims 25"))
}
