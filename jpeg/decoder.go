package jpeg

import (
	"errors"
	"io"
)

// Marker bytes, the 0xFF prefix stripped.
const (
	sof0Marker  = 0xc0 // baseline sequential
	sof2Marker  = 0xc2 // progressive
	dhtMarker   = 0xc4
	rst0Marker  = 0xd0
	rst7Marker  = 0xd7
	soiMarker   = 0xd8
	eoiMarker   = 0xd9
	sosMarker   = 0xda
	dqtMarker   = 0xdb
	driMarker   = 0xdd
	app0Marker  = 0xe0
	app1Marker  = 0xe1
	app2Marker  = 0xe2
	app14Marker = 0xee
	app15Marker = 0xef
	comMarker   = 0xfe
)

const (
	maxComponents = 4
	maxTables     = 4 // quant table ids and huffman table ids are 0..3
	dcTable       = 0
	acTable       = 1
)

// component is one frame component and its decode state. The coefficient
// buffer spans the full MCU-padded block grid in natural order; samples are
// rendered into data after all scans complete.
type component struct {
	id byte
	h  int // horizontal sampling factor
	v  int // vertical sampling factor
	tq uint8

	bw, bh int // block grid size, padded to a whole number of MCUs
	coeffs []int32
	data   []byte
	stride int

	// dcPred is scoped to the current scan; it resets at scan start and
	// at every restart marker.
	dcPred int32

	// Entropy table selectors for the current scan.
	dcTab uint8
	acTab uint8
}

type savedSegment struct {
	marker  byte
	payload []byte
}

type decoder struct {
	src  byteSource
	opts DecodeOptions

	width       int
	height      int
	progressive bool
	nComp       int
	comp        [maxComponents]component
	// compIndex maps a component byte id to its index in comp, -1 if
	// unknown. Ids are single bytes per the format, so a flat array
	// beats a map in the per-block loops.
	compIndex [256]int8

	hMax, vMax       int
	mcuCols, mcuRows int

	quant        [maxTables][blockSize]uint16 // natural order
	quantDefined [maxTables]bool
	huff         [2][maxTables]huffTable

	restartInterval int

	// eobRun is the progressive end-of-block run carried across blocks
	// within one AC scan. Reset at scan start and at restart markers.
	eobRun int

	adobe          bool
	adobeTransform uint8

	exifRaw     []byte
	orientation int
	iccChunks   [][]byte
	iccProfile  []byte

	// saved holds every non-entropy segment seen, for the one-shot
	// missing-table re-scan.
	saved     []savedSegment
	rescanned bool

	sawSOF    bool
	allocated bool
	nScans    int
}

func newDecoder(src byteSource, opts DecodeOptions) *decoder {
	d := &decoder{src: src, opts: opts, orientation: 1}
	for i := range d.compIndex {
		d.compIndex[i] = -1
	}
	return d
}

func (d *decoder) readByte() (byte, error) {
	return d.src.next()
}

func (d *decoder) readFull(p []byte) error {
	for i := range p {
		b, err := d.src.next()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return err
		}
		p[i] = b
	}
	return nil
}

// readSegment reads one marker segment payload: a big-endian length that
// counts itself, followed by length-2 content bytes.
func (d *decoder) readSegment(marker byte) ([]byte, error) {
	var lb [2]byte
	if err := d.readFull(lb[:]); err != nil {
		return nil, headerErr("truncated segment length for marker 0x%02x", marker)
	}
	n := int(lb[0])<<8 | int(lb[1])
	if n < 2 {
		return nil, headerErr("segment length %d for marker 0x%02x", n, marker)
	}
	payload := make([]byte, n-2)
	if err := d.readFull(payload); err != nil {
		return nil, headerErr("truncated segment for marker 0x%02x", marker)
	}
	d.saved = append(d.saved, savedSegment{marker: marker, payload: payload})
	return payload, nil
}

// nextMarker scans forward to the next marker byte. Garbage between
// segments is skipped rather than rejected; fill bytes (repeated 0xFF) and
// stuffed zero bytes are passed over.
func (d *decoder) nextMarker() (byte, error) {
	for {
		b, err := d.readByte()
		if err != nil {
			return 0, err
		}
		if b != 0xFF {
			continue
		}
		m, err := d.readByte()
		if err != nil {
			return 0, err
		}
		for m == 0xFF {
			m, err = d.readByte()
			if err != nil {
				return 0, err
			}
		}
		if m == 0x00 {
			continue
		}
		return m, nil
	}
}

// decode runs the marker state machine. With configOnly set it stops after
// the frame header.
func (d *decoder) decode(configOnly bool) error {
	b0, err := d.readByte()
	if err != nil {
		return &HeaderError{Reason: "empty input", Err: ErrNoJPEG}
	}
	b1, err := d.readByte()
	if err != nil || b0 != 0xFF || b1 != soiMarker {
		return &HeaderError{Reason: "missing SOI marker", Err: ErrNoJPEG}
	}

	var pending byte
	for {
		marker := pending
		pending = 0
		if marker == 0 {
			marker, err = d.nextMarker()
			if err != nil {
				if errors.Is(err, io.EOF) && d.nScans > 0 {
					// Missing EOI after at least one scan. The decoded
					// data stands.
					return nil
				}
				if errors.Is(err, io.EOF) {
					return headerErr("no image data before end of input")
				}
				return err
			}
		}

		switch {
		case marker == eoiMarker:
			if d.nScans == 0 {
				return headerErr("no scan before EOI")
			}
			return nil

		case marker == sof0Marker || marker == sof2Marker:
			if err := d.processSOF(marker); err != nil {
				return err
			}
			if configOnly {
				return nil
			}

		case marker == dhtMarker:
			payload, err := d.readSegment(marker)
			if err != nil {
				return err
			}
			if err := d.parseDHT(payload); err != nil {
				return err
			}

		case marker == dqtMarker:
			payload, err := d.readSegment(marker)
			if err != nil {
				return err
			}
			if err := d.parseDQT(payload); err != nil {
				return err
			}

		case marker == driMarker:
			payload, err := d.readSegment(marker)
			if err != nil {
				return err
			}
			if len(payload) < 2 {
				return headerErr("short DRI segment")
			}
			d.restartInterval = int(payload[0])<<8 | int(payload[1])

		case marker == sosMarker:
			pending, err = d.processSOS()
			if err != nil {
				return err
			}

		case marker >= rst0Marker && marker <= rst7Marker:
			// Stray restart marker between segments; ignore.

		case marker == app1Marker:
			payload, err := d.readSegment(marker)
			if err != nil {
				return err
			}
			d.processAPP1(payload)

		case marker == app2Marker:
			payload, err := d.readSegment(marker)
			if err != nil {
				return err
			}
			d.processAPP2(payload)

		case marker == app14Marker:
			payload, err := d.readSegment(marker)
			if err != nil {
				return err
			}
			d.processAPP14(payload)

		case (marker >= app0Marker && marker <= app15Marker) || marker == comMarker:
			if _, err := d.readSegment(marker); err != nil {
				return err
			}

		case marker >= 0xc0 && marker <= 0xcf:
			// Some other SOF variant (extended sequential, lossless,
			// arithmetic, hierarchical).
			return &HeaderError{
				Reason: "unsupported frame type",
				Err:    ErrUnsupported,
			}

		default:
			// Unknown marker with a conventional length field.
			if _, err := d.readSegment(marker); err != nil {
				return err
			}
		}
	}
}

func (d *decoder) processSOF(marker byte) error {
	if d.sawSOF {
		return headerErr("multiple SOF markers")
	}
	payload, err := d.readSegment(marker)
	if err != nil {
		return err
	}
	if len(payload) < 6 {
		return headerErr("short SOF segment")
	}
	if payload[0] != 8 {
		return &HeaderError{
			Reason: "unsupported sample precision",
			Err:    ErrUnsupported,
		}
	}
	d.height = int(payload[1])<<8 | int(payload[2])
	d.width = int(payload[3])<<8 | int(payload[4])
	if d.width == 0 || d.height == 0 {
		return headerErr("zero image dimension")
	}
	d.nComp = int(payload[5])
	switch d.nComp {
	case 1, 3, 4:
	default:
		return &HeaderError{
			Reason: "unsupported component count",
			Err:    ErrUnsupported,
		}
	}
	if len(payload) < 6+3*d.nComp {
		return headerErr("short SOF segment")
	}

	d.progressive = marker == sof2Marker
	d.hMax, d.vMax = 1, 1
	for i := 0; i < d.nComp; i++ {
		c := &d.comp[i]
		c.id = payload[6+3*i]
		hv := payload[7+3*i]
		c.h = int(hv >> 4)
		c.v = int(hv & 0x0F)
		c.tq = payload[8+3*i]
		if c.h < 1 || c.h > 4 || c.v < 1 || c.v > 4 {
			return headerErr("component %d sampling factors %dx%d", c.id, c.h, c.v)
		}
		if c.tq >= maxTables {
			return headerErr("component %d quantization table id %d", c.id, c.tq)
		}
		if d.compIndex[c.id] >= 0 {
			return headerErr("duplicate component id %d", c.id)
		}
		d.compIndex[c.id] = int8(i)
		if c.h > d.hMax {
			d.hMax = c.h
		}
		if c.v > d.vMax {
			d.vMax = c.v
		}
	}

	d.mcuCols = (d.width + 8*d.hMax - 1) / (8 * d.hMax)
	d.mcuRows = (d.height + 8*d.vMax - 1) / (8 * d.vMax)
	for i := 0; i < d.nComp; i++ {
		c := &d.comp[i]
		c.bw = d.mcuCols * c.h
		c.bh = d.mcuRows * c.v
		c.stride = c.bw * 8
	}
	d.sawSOF = true
	return nil
}

func (d *decoder) parseDQT(payload []byte) error {
	for len(payload) > 0 {
		pqTq := payload[0]
		pq := pqTq >> 4
		tq := pqTq & 0x0F
		if pq > 1 || tq >= maxTables {
			return headerErr("DQT precision %d table id %d", pq, tq)
		}
		n := blockSize
		if pq == 1 {
			n *= 2
		}
		if len(payload) < 1+n {
			return headerErr("short DQT record")
		}
		// Entries arrive in zigzag order; store them in natural order.
		for i := 0; i < blockSize; i++ {
			var v uint16
			if pq == 1 {
				v = uint16(payload[1+2*i])<<8 | uint16(payload[2+2*i])
			} else {
				v = uint16(payload[1+i])
			}
			if v == 0 {
				v = 1
			}
			d.quant[tq][unzig[i]] = v
		}
		d.quantDefined[tq] = true
		payload = payload[1+n:]
	}
	return nil
}

func (d *decoder) parseDHT(payload []byte) error {
	for len(payload) > 0 {
		if len(payload) < 17 {
			return headerErr("short DHT record")
		}
		tcTh := payload[0]
		tc := tcTh >> 4
		th := tcTh & 0x0F
		if tc > 1 || th >= maxTables {
			return headerErr("DHT class %d table id %d", tc, th)
		}
		var counts [16]byte
		copy(counts[:], payload[1:17])
		n := 0
		for _, c := range counts {
			n += int(c)
		}
		if len(payload) < 17+n {
			return headerErr("short DHT record")
		}
		if err := d.huff[tc][th].build(&counts, payload[17:17+n]); err != nil {
			return headerErr("DHT class %d id %d: %v", tc, th, err)
		}
		payload = payload[17+n:]
	}
	return nil
}

func (d *decoder) processAPP1(payload []byte) {
	if len(payload) >= len(exifSignature) && string(payload[:6]) == string(exifSignature) {
		if d.exifRaw == nil {
			d.exifRaw = payload
			d.orientation = exifOrientation(payload)
		}
	}
}

const iccSignature = "ICC_PROFILE\x00"

// processAPP2 collects ICC profile chunks. Each carries a 1-based sequence
// number and the total chunk count; the profile is assembled once every
// chunk has arrived.
func (d *decoder) processAPP2(payload []byte) {
	if len(payload) < len(iccSignature)+2 || string(payload[:len(iccSignature)]) != iccSignature {
		return
	}
	seq := int(payload[len(iccSignature)])
	count := int(payload[len(iccSignature)+1])
	if seq < 1 || count < 1 || seq > count {
		return
	}
	if d.iccChunks == nil {
		d.iccChunks = make([][]byte, count)
	}
	if count != len(d.iccChunks) || d.iccChunks[seq-1] != nil {
		return
	}
	d.iccChunks[seq-1] = payload[len(iccSignature)+2:]

	total := 0
	for _, c := range d.iccChunks {
		if c == nil {
			return
		}
		total += len(c)
	}
	profile := make([]byte, 0, total)
	for _, c := range d.iccChunks {
		profile = append(profile, c...)
	}
	d.iccProfile = profile
}

func (d *decoder) processAPP14(payload []byte) {
	if len(payload) >= 12 && string(payload[:5]) == "Adobe" {
		d.adobe = true
		d.adobeTransform = payload[11]
	}
}

// rescanForDHT re-parses every saved DHT segment once, in case a malformed
// record ordering made the first pass miss a table.
func (d *decoder) rescanForDHT() {
	if d.rescanned {
		return
	}
	d.rescanned = true
	for _, s := range d.saved {
		if s.marker == dhtMarker {
			d.parseDHT(s.payload)
		}
	}
}

// allocate sizes each component's coefficient and sample buffers. Called at
// the first SOS, after the frame geometry and quant references are known.
func (d *decoder) allocate() error {
	if d.allocated {
		return nil
	}
	for i := 0; i < d.nComp; i++ {
		c := &d.comp[i]
		if !d.quantDefined[c.tq] {
			return headerErr("component %d references undefined quantization table %d", c.id, c.tq)
		}
		c.coeffs = make([]int32, c.bw*c.bh*blockSize)
		c.data = make([]byte, c.stride*c.bh*8)
	}
	d.allocated = true
	return nil
}

// render dequantizes every stored coefficient block and inverse transforms
// it into the component sample planes. Both baseline and progressive frames
// funnel through here once all scans are in.
func (d *decoder) render() {
	transform := idct
	if d.opts.FloatIDCT {
		transform = idctFloat
	}
	var b block
	for i := 0; i < d.nComp; i++ {
		c := &d.comp[i]
		q := &d.quant[c.tq]
		for by := 0; by < c.bh; by++ {
			for bx := 0; bx < c.bw; bx++ {
				co := c.coeffs[(by*c.bw+bx)*blockSize:]
				for k := 0; k < blockSize; k++ {
					b[k] = co[k] * int32(q[k])
				}
				transform(&b, c.data, 8*by*c.stride+8*bx, c.stride)
			}
		}
	}
}
