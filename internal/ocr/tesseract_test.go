package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docingest/internal/common"
)

// fakeRunner records invocations and plays back canned output.
type fakeRunner struct {
	stdout   []byte
	stderr   []byte
	err      error
	lookErr  error
	commands [][]string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.commands = append(f.commands, append([]string{name}, args...))
	return f.stdout, f.stderr, f.err
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.lookErr != nil {
		return "", f.lookErr
	}
	return "/usr/bin/" + name, nil
}

func tsvHeader() string {
	return "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext"
}

func tsvWord(block, par, line int, conf float64, text string) string {
	return fmt.Sprintf("5\t1\t%d\t%d\t%d\t1\t0\t0\t10\t10\t%.2f\t%s", block, par, line, conf, text)
}

func TestParseTSVGroupsLines(t *testing.T) {
	tsv := strings.Join([]string{
		tsvHeader(),
		"1\t1\t0\t0\t0\t0\t0\t0\t100\t100\t-1\t", // page row, ignored
		tsvWord(1, 1, 1, 90, "Hello"),
		tsvWord(1, 1, 1, 80, "world"),
		tsvWord(1, 1, 2, 70, "second"),
		tsvWord(1, 1, 2, 60, "line"),
	}, "\n")

	res := ParseTSV(tsv)
	assert.Equal(t, "Hello world\nsecond line", res.Text)
	require.NotNil(t, res.Confidence)
	assert.InDelta(t, 0.75, *res.Confidence, 1e-9) // mean of 90,80,70,60 over 100
	assert.Equal(t, 0.0, res.ShortTokenRatio)
}

func TestParseTSVShortTokenRatio(t *testing.T) {
	tsv := strings.Join([]string{
		tsvHeader(),
		tsvWord(1, 1, 1, 50, "ab"),
		tsvWord(1, 1, 1, 50, "x"),
		tsvWord(1, 1, 1, 50, "word"),
		tsvWord(1, 1, 1, 50, "another"),
	}, "\n")

	res := ParseTSV(tsv)
	assert.InDelta(t, 0.5, res.ShortTokenRatio, 1e-9)
}

func TestParseTSVSkipsNegativeConfidence(t *testing.T) {
	tsv := strings.Join([]string{
		tsvHeader(),
		tsvWord(1, 1, 1, -1, "ghost"),
		tsvWord(1, 1, 1, 100, "real"),
	}, "\n")

	res := ParseTSV(tsv)
	require.NotNil(t, res.Confidence)
	assert.InDelta(t, 1.0, *res.Confidence, 1e-9)
}

func TestParseTSVEmptyInput(t *testing.T) {
	res := ParseTSV(tsvHeader())
	assert.Empty(t, res.Text)
	assert.Nil(t, res.Confidence)
	assert.Equal(t, 0.0, res.ShortTokenRatio)
}

func TestRecognizeUnavailableBinary(t *testing.T) {
	fr := &fakeRunner{lookErr: errors.New("not found")}
	e := NewEngine(Config{}, nil)
	e.runner = fr

	assert.False(t, e.Available())
	_, err := e.Recognize(context.Background(), []byte("jpeg"))
	assert.ErrorIs(t, err, common.ErrOCRUnavailable)
	assert.Empty(t, fr.commands, "no subprocess should run")
}

func TestRecognizePassesTesseractArgs(t *testing.T) {
	fr := &fakeRunner{stdout: []byte(tsvHeader() + "\n" + tsvWord(1, 1, 1, 88, "ok"))}
	e := NewEngine(Config{Lang: "deu", PSM: 6, OEM: 1, DPI: 150, TessdataDir: "/opt/tessdata"}, nil)
	e.runner = fr

	res, err := e.Recognize(context.Background(), []byte{0xFF, 0xD8})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)

	require.Len(t, fr.commands, 1)
	cmd := fr.commands[0]
	assert.Equal(t, "tesseract", cmd[0])
	assert.Contains(t, cmd, "stdout")
	assert.Contains(t, cmd, "-l")
	assert.Contains(t, cmd, "deu")
	assert.Contains(t, cmd, "--psm")
	assert.Contains(t, cmd, "--oem")
	assert.Contains(t, cmd, "--tessdata-dir")
	assert.Equal(t, "tsv", cmd[len(cmd)-1])
}

func TestRecognizeSubprocessError(t *testing.T) {
	fr := &fakeRunner{err: errors.New("boom"), stderr: []byte("tesseract blew up")}
	e := NewEngine(Config{}, nil)
	e.runner = fr

	_, err := e.Recognize(context.Background(), []byte("jpeg"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tesseract")
}

func TestNormalize(t *testing.T) {
	in := "a  b\r\nc\td\n\n\n\n e "
	out := Normalize(in)
	assert.Equal(t, "a b\nc d\n\n e", out)
}
