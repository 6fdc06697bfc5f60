package jpeg

import "fmt"

func syntaxPanic(format string, args ...interface{}) {
	args = append(args, ErrSyntax)
	panic(errDecode{fmt.Errorf("jpeg: "+format+": %w", args...)})
}

// processSOS parses a scan header, runs the scan, and returns the marker
// that terminated the entropy-coded data (0 when the data ran out).
func (d *decoder) processSOS() (byte, error) {
	if !d.sawSOF {
		return 0, headerErr("SOS before SOF")
	}
	payload, err := d.readSegment(sosMarker)
	if err != nil {
		return 0, err
	}
	if len(payload) < 1 {
		return 0, headerErr("empty SOS segment")
	}
	ns := int(payload[0])
	if ns < 1 || ns > maxComponents || len(payload) < 4+2*ns {
		return 0, headerErr("SOS component count %d", ns)
	}

	scan := make([]int, ns)
	compIDs := make([]int, ns)
	for i := 0; i < ns; i++ {
		cs := payload[1+2*i]
		ci := d.compIndex[cs]
		if ci < 0 {
			return 0, headerErr("scan references unknown component id %d", cs)
		}
		c := &d.comp[ci]
		sel := payload[2+2*i]
		c.dcTab = sel >> 4
		c.acTab = sel & 0x0F
		if c.dcTab >= maxTables || c.acTab >= maxTables {
			return 0, headerErr("component %d table selectors %d/%d", cs, c.dcTab, c.acTab)
		}
		scan[i] = int(ci)
		compIDs[i] = int(cs)
	}

	ss := int(payload[1+2*ns])
	se := int(payload[2+2*ns])
	ah := int(payload[3+2*ns] >> 4)
	al := int(payload[3+2*ns] & 0x0F)
	if d.progressive {
		if ss > se || se >= blockSize || ah > 13 || al > 13 {
			return 0, headerErr("scan parameters Ss=%d Se=%d Ah=%d Al=%d", ss, se, ah, al)
		}
		if ss == 0 && se != 0 {
			return 0, headerErr("progressive DC scan with Se=%d", se)
		}
		if ss > 0 && ns != 1 {
			return 0, headerErr("interleaved progressive AC scan")
		}
	} else if ss != 0 || se != blockSize-1 || ah != 0 || al != 0 {
		return 0, headerErr("baseline scan with Ss=%d Se=%d Ah=%d Al=%d", ss, se, ah, al)
	}

	if err := d.allocate(); err != nil {
		return 0, err
	}

	if d.missingHuffman(scan, ss, se, ah) {
		d.rescanForDHT()
		if d.missingHuffman(scan, ss, se, ah) {
			// Still undefined after the re-scan: drain the entropy data
			// without decoding it. The scan's blocks keep their pre-scan
			// values and the image is produced anyway.
			d.nScans++
			return d.drainScan()
		}
	}

	d.nScans++
	bits := newBitReader(d.src)
	if err := d.decodeScan(bits, scan, compIDs, ss, se, ah, al); err != nil {
		return 0, err
	}
	return bits.pendingMarker(), nil
}

// missingHuffman reports whether the scan references a Huffman table that
// has not been defined. DC refinement scans use no table at all.
func (d *decoder) missingHuffman(scan []int, ss, se, ah int) bool {
	needDC := ss == 0 && ah == 0
	needAC := se > 0
	for _, ci := range scan {
		c := &d.comp[ci]
		if needDC && !d.huff[dcTable][c.dcTab].defined {
			return true
		}
		if needAC && !d.huff[acTable][c.acTab].defined {
			return true
		}
	}
	return false
}

// drainScan consumes entropy-coded bytes until a marker, discarding them.
func (d *decoder) drainScan() (pending byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			de, ok := r.(errDecode)
			if !ok {
				panic(r)
			}
			err = de.error
		}
	}()
	bits := newBitReader(d.src)
	for bits.marker == 0 {
		bits.fill()
		bits.buf, bits.nbits = 0, 0
	}
	return bits.pendingMarker(), nil
}

// decodeScan decodes one scan's entropy data. Hot-path failures surface as
// errDecode panics; whether that is fatal depends on the reader state. A
// failure after the reader stopped at a real marker is benign truncation
// and the partial scan stands. A failure in the middle of abundant data,
// or after the input itself ran out, is fatal and carries the scan context.
func (d *decoder) decodeScan(bits *bitReader, scan, compIDs []int, ss, se, ah, al int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			de, ok := r.(errDecode)
			if !ok {
				panic(r)
			}
			if bits.pendingMarker() != 0 {
				err = nil
				return
			}
			err = &ScanError{
				Components: compIDs,
				Ss:         ss,
				Se:         se,
				Ah:         ah,
				Al:         al,
				Err:        de.error,
			}
		}
	}()

	for _, ci := range scan {
		d.comp[ci].dcPred = 0
	}
	d.eobRun = 0

	if len(scan) == 1 {
		d.decodeScanSequential(bits, scan[0], ss, se, ah, al)
	} else {
		d.decodeScanInterleaved(bits, scan, ss, se, ah, al)
	}
	return nil
}

// decodeScanInterleaved iterates MCU by MCU, covering each component's
// sampling-factor block grid within the MCU.
func (d *decoder) decodeScanInterleaved(bits *bitReader, scan []int, ss, se, ah, al int) {
	restartCount := d.restartInterval
	for my := 0; my < d.mcuRows; my++ {
		for mx := 0; mx < d.mcuCols; mx++ {
			for _, ci := range scan {
				c := &d.comp[ci]
				for sy := 0; sy < c.v; sy++ {
					for sx := 0; sx < c.h; sx++ {
						bx := mx*c.h + sx
						by := my*c.v + sy
						coefs := c.coeffs[(by*c.bw+bx)*blockSize:][:blockSize]
						d.decodeBlock(bits, c, coefs, ss, se, ah, al)
					}
				}
			}
			if d.restartInterval > 0 {
				restartCount--
				if restartCount == 0 && !(my == d.mcuRows-1 && mx == d.mcuCols-1) {
					d.restart(bits, scan)
					restartCount = d.restartInterval
				}
			}
		}
	}
}

// decodeScanSequential iterates block by block over a single component's
// own grid. Non-interleaved scans cover only the blocks the component's
// pixel area needs, not the MCU-padded grid.
func (d *decoder) decodeScanSequential(bits *bitReader, ci int, ss, se, ah, al int) {
	c := &d.comp[ci]
	sw := (d.width*c.h + 8*d.hMax - 1) / (8 * d.hMax)
	sh := (d.height*c.v + 8*d.vMax - 1) / (8 * d.vMax)
	n := 0
	for by := 0; by < sh; by++ {
		for bx := 0; bx < sw; bx++ {
			coefs := c.coeffs[(by*c.bw+bx)*blockSize:][:blockSize]
			d.decodeBlock(bits, c, coefs, ss, se, ah, al)
			n++
			if d.restartInterval > 0 && n%d.restartInterval == 0 && n < sw*sh {
				d.restart(bits, []int{ci})
			}
		}
	}
}

// restart consumes a restart marker, resetting the DC predictors and any
// outstanding EOB run. Which of RST0..RST7 appears is not validated; real
// encoders cycle them but decoding does not depend on the sequence.
func (d *decoder) restart(bits *bitReader, scan []int) {
	if _, ok := bits.restartMarker(); !ok {
		syntaxPanic("expected restart marker")
	}
	for _, ci := range scan {
		d.comp[ci].dcPred = 0
	}
	d.eobRun = 0
}

func (d *decoder) decodeBlock(bits *bitReader, c *component, coefs []int32, ss, se, ah, al int) {
	switch {
	case !d.progressive:
		d.decodeBlockBaseline(bits, c, coefs)
	case ss == 0 && ah == 0:
		// Progressive DC first pass: baseline DC decode shifted by the
		// point transform.
		s := decodeHuffman(bits, &d.huff[dcTable][c.dcTab])
		if s > 15 {
			syntaxPanic("DC coefficient category %d", s)
		}
		var diff int32
		if s != 0 {
			diff = bits.receiveExtend(int(s))
		}
		c.dcPred += diff
		coefs[0] = c.dcPred << al
	case ss == 0:
		// DC refinement: one raw bit per block.
		if bits.readBit() != 0 {
			coefs[0] |= 1 << al
		}
	case ah == 0:
		d.decodeBlockACFirst(bits, c, coefs, ss, se, al)
	default:
		d.refineBlockAC(bits, c, coefs, ss, se, al)
	}
}

func (d *decoder) decodeBlockBaseline(bits *bitReader, c *component, coefs []int32) {
	s := decodeHuffman(bits, &d.huff[dcTable][c.dcTab])
	if s > 15 {
		syntaxPanic("DC coefficient category %d", s)
	}
	var diff int32
	if s != 0 {
		diff = bits.receiveExtend(int(s))
	}
	c.dcPred += diff
	coefs[0] = c.dcPred

	ac := &d.huff[acTable][c.acTab]
	for k := 1; k < blockSize; {
		sym := decodeHuffman(bits, ac)
		s := int(sym & 0x0F)
		r := int(sym >> 4)
		if s == 0 {
			if r != 15 {
				return // EOB
			}
			k += 16
			continue
		}
		k += r
		if k >= blockSize {
			syntaxPanic("AC run past end of block")
		}
		coefs[unzig[k]] = bits.receiveExtend(s)
		k++
	}
}

func (d *decoder) decodeBlockACFirst(bits *bitReader, c *component, coefs []int32, ss, se, al int) {
	if d.eobRun > 0 {
		d.eobRun--
		return
	}
	ac := &d.huff[acTable][c.acTab]
	for k := ss; k <= se; {
		sym := decodeHuffman(bits, ac)
		s := int(sym & 0x0F)
		r := int(sym >> 4)
		if s == 0 {
			if r != 15 {
				// EOB run. It includes the current block, so store one
				// less than the coded count.
				d.eobRun = 1 << r
				if r > 0 {
					d.eobRun += int(bits.readBits(r))
				}
				d.eobRun--
				return
			}
			k += 16
			continue
		}
		k += r
		if k > se {
			syntaxPanic("AC run past end of band")
		}
		coefs[unzig[k]] = bits.receiveExtend(s) << al
		k++
	}
}

func (d *decoder) refineBlockAC(bits *bitReader, c *component, coefs []int32, ss, se, al int) {
	delta := int32(1) << al
	ac := &d.huff[acTable][c.acTab]
	k := ss
	if d.eobRun == 0 {
	loop:
		for k <= se {
			var z int32
			sym := decodeHuffman(bits, ac)
			s := int(sym & 0x0F)
			r := int(sym >> 4)
			switch s {
			case 0:
				if r != 15 {
					d.eobRun = 1 << r
					if r > 0 {
						d.eobRun += int(bits.readBits(r))
					}
					break loop
				}
				// ZRL: pass 16 zero positions, refining any nonzero
				// coefficients along the way.
			case 1:
				z = delta
				if bits.readBit() == 0 {
					z = -z
				}
			default:
				syntaxPanic("refinement symbol %#02x", sym)
			}
			k = d.refineNonZeroes(bits, coefs, k, se, r, delta)
			if k > se {
				syntaxPanic("refinement run past end of band")
			}
			if z != 0 {
				coefs[unzig[k]] = z
			}
			k++
		}
	}
	if d.eobRun > 0 {
		// An EOB run carried into this band still owes correction bits
		// to the nonzero coefficients it passes over. This is what
		// separates it from the first pass's blind skip.
		d.refineNonZeroes(bits, coefs, k, se, -1, delta)
		d.eobRun--
	}
}

// refineNonZeroes skips nz zero positions in coefs[k..se], emitting one
// correction bit for every nonzero coefficient passed over. nz < 0 means
// run to the end of the band. Returns the index of the nz+1'th zero
// position, or se+1.
func (d *decoder) refineNonZeroes(bits *bitReader, coefs []int32, k, se, nz int, delta int32) int {
	for ; k <= se; k++ {
		u := unzig[k]
		if coefs[u] == 0 {
			if nz == 0 {
				break
			}
			nz--
			continue
		}
		if bits.readBit() != 0 {
			if coefs[u] >= 0 {
				coefs[u] += delta
			} else {
				coefs[u] -= delta
			}
		}
	}
	return k
}
