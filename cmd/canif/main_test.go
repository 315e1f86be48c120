package main

import (
	"bytes"
	"testing"

	"github.com/samsamfire/gocanif/pkg/can"
	"github.com/samsamfire/gocanif/pkg/codec"
	"github.com/stretchr/testify/assert"
)

func TestPrintMessage(t *testing.T) {
	buf, err := codec.Encode(0x123, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}, false)
	assert.Nil(t, err)
	assert.Nil(t, buf.Append(can.NewRemoteFrame(0x124)))

	var out bytes.Buffer
	assert.Nil(t, printMessage(&out, buf))
	assert.Equal(t,
		"00000123  [8]  01 02 03 04 05 06 07 08\n"+
			"00000123  [1]  09\n"+
			"00000124  remote request\n"+
			"message : 010203040506070809\n",
		out.String())
}

func TestPrintMessageEmpty(t *testing.T) {
	var out bytes.Buffer
	assert.Nil(t, printMessage(&out, can.NewFrameBuffer()))
	assert.Equal(t, "message : \n", out.String())
}
