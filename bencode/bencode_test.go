package bencode

import (
	"bytes"
	"crypto/sha1"
	"io"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestEncodeInt(t *testing.T) {
	require.Equal(t, []byte("i42e"), EncodeBytes(Integer(42)))
	require.Equal(t, []byte("i0e"), EncodeBytes(Integer(0)))
	require.Equal(t, []byte("i-7e"), EncodeBytes(Integer(-7)))
}

func TestEncodeString(t *testing.T) {
	require.Equal(t, []byte("4:spam"), EncodeBytes(String("spam")))
	require.Equal(t, []byte("0:"), EncodeBytes(String("")))
}

func TestEncodeList(t *testing.T) {
	ben := List(String("spam"), String("eggs"))
	require.Equal(t, []byte("l4:spam4:eggse"), EncodeBytes(ben))
}

func TestEncodeDict(t *testing.T) {
	ben := NewDict().
		Set("spam", String("eggs")).
		Set("cow", String("moo")).
		Value()
	// keys come out sorted regardless of insertion order
	require.Equal(t, []byte("d3:cow3:moo4:spam4:eggse"), EncodeBytes(ben))
}

func TestDictSetReplaces(t *testing.T) {
	ben := NewDict().
		Set("a", String("first")).
		Set("a", String("second")).
		Value()
	require.Equal(t, []byte("d1:a6:seconde"), EncodeBytes(ben))
}

func TestDecodeInt(t *testing.T) {
	v, err := DecodeBytes([]byte("i42e"))
	require.NoError(t, err)
	n, ok := v.Int()
	require.True(t, ok)
	require.Equal(t, int64(42), n)

	v, err = DecodeBytes([]byte("i-42e"))
	require.NoError(t, err)
	n, _ = v.Int()
	require.Equal(t, int64(-42), n)
}

func TestDecodeIntMalformed(t *testing.T) {
	for _, in := range []string{"i-0e", "i03e", "i--1e", "ie", "i4x2e"} {
		_, err := DecodeBytes([]byte(in))
		require.ErrorIs(t, err, ErrMalformedNumber, "input %q", in)
	}
}

func TestDecodeString(t *testing.T) {
	v, err := DecodeBytes([]byte("4:spam"))
	require.NoError(t, err)
	require.Equal(t, "spam", v.Text())
}

func TestDecodeBinaryString(t *testing.T) {
	raw := []byte{0x00, 0xff, 0x13, 0x37}
	in := append([]byte("4:"), raw...)
	v, err := DecodeBytes(in)
	require.NoError(t, err)
	got, ok := v.Str()
	require.True(t, ok)
	require.Equal(t, raw, got)
}

func TestDecodeDict(t *testing.T) {
	v, err := DecodeBytes([]byte("d3:cow3:moo4:spam4:eggse"))
	require.NoError(t, err)
	cow, ok := v.Get("cow")
	require.True(t, ok)
	require.Equal(t, "moo", cow.Text())
	spam, ok := v.Get("spam")
	require.True(t, ok)
	require.Equal(t, "eggs", spam.Text())
}

func TestDecodeDictUnordered(t *testing.T) {
	_, err := DecodeBytes([]byte("d4:spam4:eggs3:cow3:mooe"))
	require.ErrorIs(t, err, ErrUnorderedDict)
}

func TestDecodeDictDuplicateKey(t *testing.T) {
	_, err := DecodeBytes([]byte("d3:cow3:moo3:cow3:bahe"))
	require.ErrorIs(t, err, ErrDuplicateKey)
}

func TestDecodeDictNonStringKey(t *testing.T) {
	_, err := DecodeBytes([]byte("di1e3:mooe"))
	require.ErrorIs(t, err, ErrInvalidKeyType)
}

func TestDecodeTruncated(t *testing.T) {
	for _, in := range []string{"", "i42", "4:spa", "l4:spam", "d3:cow"} {
		_, err := DecodeBytes([]byte(in))
		require.ErrorIs(t, err, io.ErrUnexpectedEOF, "input %q", in)
	}
}

func TestDecodeTrailingData(t *testing.T) {
	_, err := DecodeBytes([]byte("i42ei43e"))
	require.ErrorIs(t, err, ErrUnexpectedByte)
}

func TestDecodeUnexpectedByte(t *testing.T) {
	_, err := DecodeBytes([]byte("x"))
	require.ErrorIs(t, err, ErrUnexpectedByte)
}

func TestDecodeLengthOverflow(t *testing.T) {
	_, err := DecodeBytes([]byte("68719476736:x"))
	require.ErrorIs(t, err, ErrLengthOverflow)
}

func TestRoundTrip(t *testing.T) {
	inputs := []string{
		"i42e",
		"4:spam",
		"le",
		"de",
		"l4:spam4:eggsi-3ee",
		"d3:cow3:moo4:spam4:eggse",
		"d1:ad2:id20:abcdefghij0123456789e1:q4:ping1:t2:aa1:y1:qe",
	}
	for _, in := range inputs {
		v, err := DecodeBytes([]byte(in))
		require.NoError(t, err, "input %q", in)
		require.Equal(t, []byte(in), EncodeBytes(v), "input %q", in)

		again, err := DecodeBytes(EncodeBytes(v))
		require.NoError(t, err)
		require.True(t, v.Equal(again), "input %q", in)
	}
}

func TestDecodeFromStream(t *testing.T) {
	// a plain reader gets wrapped internally
	v, err := Decode(strings.NewReader("l4:spame"))
	require.NoError(t, err)
	elems, ok := v.Elems()
	require.True(t, ok)
	require.Len(t, elems, 1)
}

func TestEncodeToDigest(t *testing.T) {
	// encoding against a digest must produce the same hash as hashing the
	// materialised bytes, including strings above the chunking threshold
	big := bytes.Repeat([]byte{0xab}, chunkSize*2+17)
	v := NewDict().
		Set("data", Bytes(big)).
		Set("len", Integer(int64(len(big)))).
		Value()

	digest := sha1.New()
	require.NoError(t, Encode(digest, v))

	want := sha1.Sum(EncodeBytes(v))
	require.Equal(t, want[:], digest.Sum(nil))
}

// countingWriter records the largest single write it receives
type countingWriter struct {
	max int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	if len(p) > w.max {
		w.max = len(p)
	}
	return len(p), nil
}

func TestEncodeChunksLargeStrings(t *testing.T) {
	var w countingWriter
	big := Bytes(make([]byte, chunkSize*3+1))
	require.NoError(t, Encode(&w, big))
	require.LessOrEqual(t, w.max, chunkSize)
}

func TestErrorsCarryContext(t *testing.T) {
	_, err := DecodeBytes([]byte("d4:spam4:eggs3:cow3:mooe"))
	require.ErrorIs(t, errors.Cause(err), ErrUnorderedDict)
}
