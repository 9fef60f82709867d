package apk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBadging = `package: name='com.example.myapp' versionCode='42' versionName='2.1.0' compileSdkVersion='34'
sdkVersion:'26'
targetSdkVersion:'34'
application-label:'My Awesome App'
application-icon-160:'res/mipmap-mdpi-v4/ic_launcher.png'
application-icon-240:'res/mipmap-hdpi-v4/ic_launcher.png'
application-icon-320:'res/mipmap-xhdpi-v4/ic_launcher.png'
application-icon-480:'res/mipmap-xxhdpi-v4/ic_launcher.png'
application-icon-640:'res/mipmap-xxxhdpi-v4/ic_launcher.png'
`

func TestParseBadging(t *testing.T) {
	info, err := parseBadging(sampleBadging)
	require.NoError(t, err)

	assert.Equal(t, "com.example.myapp", info.PackageName)
	assert.Equal(t, int64(42), info.VersionCode)
	assert.Equal(t, "2.1.0", info.VersionName)
	assert.Equal(t, int64(26), info.MinSDK)
	assert.Equal(t, "My Awesome App", info.AppName)
	assert.Equal(t, "res/mipmap-xxxhdpi-v4/ic_launcher.png", info.IconPath)
}

func TestParseBadgingMinimalFallbacks(t *testing.T) {
	info, err := parseBadging("package: name='com.test' versionCode='1'\n")
	require.NoError(t, err)

	assert.Equal(t, "com.test", info.PackageName)
	assert.Equal(t, int64(1), info.VersionCode)
	assert.Equal(t, "1", info.VersionName, "version name falls back to version code")
	assert.Equal(t, int64(21), info.MinSDK, "min SDK defaults to 21")
	assert.Equal(t, "com.test", info.AppName, "app name falls back to package name")
	assert.Empty(t, info.IconPath)
}

func TestParseBadgingDoubleQuotes(t *testing.T) {
	output := `package: name="com.test" versionCode="7" versionName="1.2"
sdkVersion:"24"
application-label:"Quoted App"
`
	info, err := parseBadging(output)
	require.NoError(t, err)

	assert.Equal(t, "com.test", info.PackageName)
	assert.Equal(t, int64(7), info.VersionCode)
	assert.Equal(t, "1.2", info.VersionName)
	assert.Equal(t, int64(24), info.MinSDK)
	assert.Equal(t, "Quoted App", info.AppName)
}

func TestParseBadgingMissingPackageName(t *testing.T) {
	_, err := parseBadging("sdkVersion:'26'\n")
	assert.Error(t, err)
}

func TestParseBadgingMissingVersionCode(t *testing.T) {
	_, err := parseBadging("package: name='com.test'\n")
	assert.Error(t, err)
}

func TestParseIconLine(t *testing.T) {
	entry, ok := parseIconLine("application-icon-640:'res/mipmap-xxxhdpi-v4/ic_launcher.png'")
	require.True(t, ok)
	assert.Equal(t, 640, entry.density)
	assert.Equal(t, "res/mipmap-xxxhdpi-v4/ic_launcher.png", entry.path)

	_, ok = parseIconLine("application-icon-abc:'x.png'")
	assert.False(t, ok)
}

func TestQuotedValue(t *testing.T) {
	line := "package: name='com.example.app' versionCode='10' versionName='1.0.0'"

	v, ok := quotedValue(line, "name=")
	require.True(t, ok)
	assert.Equal(t, "com.example.app", v)

	v, ok = quotedValue(line, "versionCode=")
	require.True(t, ok)
	assert.Equal(t, "10", v)

	_, ok = quotedValue(line, "missing=")
	assert.False(t, ok)
}

func TestQuotedValueAfterColon(t *testing.T) {
	v, ok := quotedValueAfterColon("sdkVersion:'26'")
	require.True(t, ok)
	assert.Equal(t, "26", v)

	v, ok = quotedValueAfterColon(`application-label:"My App"`)
	require.True(t, ok)
	assert.Equal(t, "My App", v)

	_, ok = quotedValueAfterColon("no colon here")
	assert.False(t, ok)
}

func TestSafeIconPath(t *testing.T) {
	tests := []struct {
		path string
		ok   bool
	}{
		{"res/mipmap/ic_launcher.png", true},
		{"", false},
		{"../../../etc/passwd", false},
		{"res/../../../x.png", false},
		{"/etc/passwd", false},
	}
	for _, tt := range tests {
		_, ok := safeIconPath(tt.path)
		assert.Equal(t, tt.ok, ok, "path %q", tt.path)
	}
}
