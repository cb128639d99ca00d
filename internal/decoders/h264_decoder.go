//go:build h264dec

package decoders

import (
	"fmt"
	"unsafe"

	"github.com/WeebOrWeed/3d-streaming/internal/source"
)

/*
#cgo pkg-config: openh264
#include <limits.h>
#include <string.h>
#include <wels/codec_api.h>

static ISVCDecoder *new_decoder() {
	ISVCDecoder *dec = NULL;
	if (WelsCreateDecoder(&dec) != 0 || dec == NULL) {
		return NULL;
	}
	SDecodingParam param;
	memset(&param, 0, sizeof(param));
	param.sVideoProperty.eVideoBsType = VIDEO_BITSTREAM_DEFAULT;
	param.eEcActiveIdc = ERROR_CON_SLICE_COPY;
	param.uiTargetDqLayer = UCHAR_MAX;
	if ((*dec)->Initialize(dec, &param) != 0) {
		WelsDestroyDecoder(dec);
		return NULL;
	}
	return dec;
}

static int decode_frame(ISVCDecoder *dec, unsigned char *src, int len,
		unsigned char **planes, SBufferInfo *info) {
	memset(info, 0, sizeof(*info));
	return (*dec)->DecodeFrameNoDelay(dec, src, len, planes, info);
}

static void buffer_dims(SBufferInfo *info, int *w, int *h, int *strideY, int *strideUV) {
	*w = info->UsrData.sSystemBuffer.iWidth;
	*h = info->UsrData.sSystemBuffer.iHeight;
	*strideY = info->UsrData.sSystemBuffer.iStride[0];
	*strideUV = info->UsrData.sSystemBuffer.iStride[1];
}

static void free_decoder(ISVCDecoder *dec) {
	(*dec)->Uninitialize(dec);
	WelsDestroyDecoder(dec);
}
*/
import "C"

// H264Decoder OpenH264 decoder
type H264Decoder struct {
	dec *C.ISVCDecoder
}

func newH264Decoder() (Decoder, error) {
	dec := C.new_decoder()
	if dec == nil {
		return nil, fmt.Errorf("failed to initialize openh264 decoder")
	}
	return &H264Decoder{dec: dec}, nil
}

// Decode feeds one access unit to the decoder and returns the resulting RGB
// frame, or nil while the decoder is still buffering.
func (d *H264Decoder) Decode(payload []byte) (*source.RawFrame, error) {
	if len(payload) == 0 {
		return nil, nil
	}

	var planes [3]*C.uchar
	var info C.SBufferInfo
	rc := C.decode_frame(d.dec, (*C.uchar)(unsafe.Pointer(&payload[0])),
		C.int(len(payload)), &planes[0], &info)
	if rc != 0 {
		return nil, fmt.Errorf("openh264 decode error %d", int(rc))
	}
	if info.iBufferStatus != 1 {
		return nil, nil
	}

	var w, h, strideY, strideUV C.int
	C.buffer_dims(&info, &w, &h, &strideY, &strideUV)

	y := unsafe.Slice((*byte)(planes[0]), int(strideY)*int(h))
	u := unsafe.Slice((*byte)(planes[1]), int(strideUV)*int(h)/2)
	v := unsafe.Slice((*byte)(planes[2]), int(strideUV)*int(h)/2)

	return i420ToRGB(y, u, v, int(w), int(h), int(strideY), int(strideUV)), nil
}

// Close releases the underlying openh264 decoder
func (d *H264Decoder) Close() error {
	C.free_decoder(d.dec)
	d.dec = nil
	return nil
}

func i420ToRGB(y, u, v []byte, w, h, strideY, strideUV int) *source.RawFrame {
	frame := &source.RawFrame{
		Pix:    make([]byte, w*h*3),
		Width:  w,
		Height: h,
	}
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			c := int(y[row*strideY+col]) - 16
			d := int(u[(row/2)*strideUV+col/2]) - 128
			e := int(v[(row/2)*strideUV+col/2]) - 128

			i := (row*w + col) * 3
			frame.Pix[i] = clampByte((298*c + 409*e + 128) >> 8)
			frame.Pix[i+1] = clampByte((298*c - 100*d - 208*e + 128) >> 8)
			frame.Pix[i+2] = clampByte((298*c + 516*d + 128) >> 8)
		}
	}
	return frame
}

func clampByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

func init() {
	registeredDecoders[H264Codec] = newH264Decoder
}
