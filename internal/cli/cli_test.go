package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"tabletop-tracker/internal/testimage"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(viper.Reset)

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", t.TempDir()}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeImage(t *testing.T, img gocv.Mat) string {
	t.Helper()
	defer img.Close()
	path := filepath.Join(t.TempDir(), "frame.png")
	require.True(t, gocv.IMWrite(path, img))
	return path
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, AppName+" "+AppVersion)
}

func TestRecognize(t *testing.T) {
	frame := writeImage(t, testimage.Board())
	board := filepath.Join(t.TempDir(), "board.png")

	out, err := run(t, "recognize", frame, "--out", board)
	require.NoError(t, err)

	var result recognition
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Recognized)
	require.NotNil(t, result.Board)
	assert.Equal(t, 1280, result.Board.BoardSize.X)

	_, err = os.Stat(board)
	assert.NoError(t, err)
}

func TestRecognizeBlankFrame(t *testing.T) {
	frame := writeImage(t, testimage.Blank(1280, 800, testimage.White))

	out, err := run(t, "recognize", frame)
	require.Error(t, err)

	var result recognition
	require.NoError(t, json.NewDecoder(bytes.NewBufferString(out)).Decode(&result))
	assert.False(t, result.Recognized)
	assert.Len(t, result.MissingCorners, 4)
}

func TestRecognizeMissingFile(t *testing.T) {
	_, err := run(t, "recognize", filepath.Join(t.TempDir(), "nope.png"))
	assert.Error(t, err)
}
