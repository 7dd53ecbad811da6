package writer

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/google/renameio"

	"github.com/distr1/mxf/internal/cp"
	"github.com/distr1/mxf/internal/klv"
	"github.com/distr1/mxf/internal/partition"
)

// WriteSamples feeds sample data for a track. Complete content
// packages are emitted as soon as they are ready.
func (w *Writer) WriteSamples(trackIndex uint32, data []byte, numSamples uint32) error {
	if w.state != statePrepared && w.state != stateWriting {
		return fmt.Errorf("%w: WriteSamples before PrepareWrite", ErrState)
	}
	w.state = stateWriting
	if len(data) == 0 || numSamples == 0 {
		return nil
	}
	if _, ok := w.trackMap[trackIndex]; !ok {
		return fmt.Errorf("writer: unknown track %d", trackIndex)
	}
	if err := w.cpm.WriteSamples(trackIndex, data, numSamples); err != nil {
		return err
	}
	return w.writeContentPackages(false)
}

// WriteUserTimecode supplies the user timecode carried by the system
// item of the current content package.
func (w *Writer) WriteUserTimecode(tc cp.Timecode) error {
	if w.state != statePrepared && w.state != stateWriting {
		return fmt.Errorf("%w: WriteUserTimecode before PrepareWrite", ErrState)
	}
	if err := w.cpm.WriteUserTimecode(tc); err != nil {
		return err
	}
	return w.writeContentPackages(false)
}

// AddIndexEntry supplies the VBE index entry for the edit unit at
// position in coded order.
func (w *Writer) AddIndexEntry(trackIndex uint32, position int64, temporalOffset, keyFrameOffset int8, flags uint8, canStartPartition bool) error {
	return w.table.AddIndexEntry(trackIndex, position, temporalOffset, keyFrameOffset, flags, canStartPartition)
}

// UpdateIndexEntry back-fills a temporal offset that was unknown when
// the entry was added.
func (w *Writer) UpdateIndexEntry(trackIndex uint32, position int64, temporalOffset int8) error {
	return w.table.UpdateIndexEntry(trackIndex, position, temporalOffset)
}

// writeContentPackages drains ready packages, opening index and
// essence partitions where the configuration requires them.
func (w *Writer) writeContentPackages(endOfSamples bool) error {
	// dual segment index tables (AVCI) wait for the first two content
	// packages so the segment pair can be sized
	if !endOfSamples && w.table.RequireSegmentPair() &&
		w.cpm.Position() == 0 && !w.cpm.HaveContentPackages(2) {
		return nil
	}

	for {
		ready, err := w.cpm.HaveContentPackage(endOfSamples)
		if err != nil {
			return err
		}
		if !ready {
			return nil
		}

		startEssPartition := false
		essPartitionBodyOffset := w.table.StreamOffset()

		if w.firstWrite {
			if w.table.IsCBE() {
				// make sure edit unit byte count and delta entries are
				// known before the segment is written
				num := 1
				if w.cpm.HaveContentPackages(2) {
					num = 2
				}
				if err := w.cpm.UpdateIndexTable(num); err != nil {
					return err
				}

				if w.cfg.Flavour&FlavourMinPartitions != 0 {
					w.cbeIndexStartPos = w.f.Tell()
					if err := w.table.WriteSegments(w.f, w.partitions.Partitions()[0], &w.fillKey, false); err != nil {
						return err
					}
				} else {
					ip := w.newBodyPartition(w.cfg.IndexSID, 0, 0)
					if err := ip.Write(w.f); err != nil {
						return err
					}
					if err := partition.FillToKAG(w.f, ip, &w.fillKey); err != nil {
						return err
					}
					w.cbeIndexStartPos = w.f.Tell()
					if err := w.table.WriteSegments(w.f, ip, &w.fillKey, false); err != nil {
						return err
					}
				}
			}
			if w.cfg.Flavour&FlavourMinPartitions == 0 {
				startEssPartition = true
			}
			w.firstWrite = false
		} else if w.cfg.PartitionInterval > 0 &&
			w.partitionFrameCount >= w.cfg.PartitionInterval && w.table.CanStartPartition() {
			if w.table.IsVBE() && w.table.HaveSegments() {
				ip := w.newBodyPartition(w.cfg.IndexSID, 0, 0)
				if err := ip.Write(w.f); err != nil {
					return err
				}
				if err := partition.FillToKAG(w.f, ip, &w.fillKey); err != nil {
					return err
				}
				if err := w.table.WriteSegments(w.f, ip, &w.fillKey, false); err != nil {
					return err
				}
			}
			startEssPartition = true
			w.partitionFrameCount = 0
		}

		if startEssPartition {
			ep := w.newBodyPartition(0, w.cfg.BodySID, uint64(essPartitionBodyOffset))
			if err := ep.Write(w.f); err != nil {
				return err
			}
			if err := partition.FillToKAG(w.f, ep, &w.fillKey); err != nil {
				return err
			}
		}

		if err := w.cpm.WriteNextContentPackage(); err != nil {
			return err
		}
		if w.cfg.PartitionInterval > 0 {
			w.partitionFrameCount++
		}
	}
}

func (w *Writer) newBodyPartition(indexSID, bodySID uint32, bodyOffset uint64) *partition.Partition {
	p := w.partitions.AppendLike(w.partitions.Partitions()[0])
	p.Key = partition.BodyKey(partition.StatusOpenIncomplete)
	p.IndexSID = indexSID
	p.BodySID = bodySID
	p.BodyOffset = bodyOffset
	return p
}

// Close finalises the file: remaining packages and index segments are
// written, the footer partition and RIP are emitted, durations are
// filled in, the header metadata and CBE index segments are re-written
// in place, and the partition packs are updated.
func (w *Writer) Close() error {
	if w.state == stateDone {
		return fmt.Errorf("%w: Close called twice", ErrState)
	}
	if w.state == stateInit {
		return fmt.Errorf("%w: Close before PrepareWrite", ErrState)
	}

	// write any remaining content packages (e.g. the first AVCI
	// package when the duration equals 1)
	if err := w.writeContentPackages(true); err != nil {
		return err
	}

	if backlog := w.table.PendingBacklog(); backlog > 0 {
		return fmt.Errorf("writer: %d index entries still unresolved at close", backlog)
	}
	if w.cfg.InputDuration >= 0 && w.table.Duration() != w.cfg.InputDuration {
		return fmt.Errorf("writer: wrote %d edit units, input duration was %d", w.table.Duration(), w.cfg.InputDuration)
	}

	// non-minimal flavour: remaining VBE segments go into a dedicated
	// index partition before the footer
	if w.cfg.Flavour&FlavourMinPartitions == 0 && w.table.IsVBE() && w.table.HaveSegments() {
		ip := w.newBodyPartition(w.cfg.IndexSID, 0, 0)
		if err := ip.Write(w.f); err != nil {
			return err
		}
		if err := partition.FillToKAG(w.f, ip, &w.fillKey); err != nil {
			return err
		}
		if err := w.table.WriteSegments(w.f, ip, &w.fillKey, true); err != nil {
			return err
		}
	}

	fp := w.partitions.AppendLike(w.partitions.Partitions()[0])
	fp.Key = partition.FooterKey(partition.StatusClosedComplete)
	minPartVBE := w.cfg.Flavour&FlavourMinPartitions != 0 && w.table.IsVBE() && w.table.HaveSegments()
	if minPartVBE {
		fp.IndexSID = w.cfg.IndexSID
	}
	if err := fp.Write(w.f); err != nil {
		return err
	}
	if err := partition.FillToKAG(w.f, fp, &w.fillKey); err != nil {
		return err
	}
	if minPartVBE {
		if err := w.table.WriteSegments(w.f, fp, &w.fillKey, true); err != nil {
			return err
		}
	}

	if err := w.partitions.WriteRIP(w.f); err != nil {
		return err
	}

	if w.cfg.Flavour&FlavourSinglePass != 0 {
		// single pass: nothing is re-written
		if w.cfg.Flavour&FlavourMD5 != 0 {
			if err := w.computeMD5(); err != nil {
				return err
			}
		}
		w.state = stateDone
		return w.f.Close()
	}

	if err := w.updatePackageMetadata(); err != nil {
		return err
	}

	// re-write the header metadata in place
	if _, err := w.f.Seek(w.headerMetadataStartPos, io.SeekStart); err != nil {
		return err
	}
	if err := w.hm.Write(w.f, &w.fillKey); err != nil {
		return err
	}
	if err := partition.FillToPosition(w.f, &w.fillKey, uint64(w.headerMetadataEndPos)); err != nil {
		return err
	}

	// re-write the CBE index segments with the final duration
	if w.table.IsCBE() && w.cbeIndexStartPos > 0 {
		if _, err := w.f.Seek(w.cbeIndexStartPos, io.SeekStart); err != nil {
			return err
		}
		indexPartition := w.partitions.Partitions()[0]
		if w.cfg.Flavour&FlavourMinPartitions == 0 {
			indexPartition = w.partitions.Partitions()[1]
		}
		if err := w.table.WriteSegments(w.f, indexPartition, &w.fillKey, true); err != nil {
			return err
		}
	}

	// update the partition keys and re-write every pack
	for _, p := range w.partitions.Partitions() {
		switch {
		case partition.IsHeader(&p.Key):
			p.Key = partition.HeaderKey(partition.StatusClosedComplete)
		case partition.IsBody(&p.Key) && w.cfg.Flavour&FlavourNoBodyPartitionUpdate == 0:
			p.Key = partition.BodyKey(partition.StatusClosedComplete)
		}
	}
	if err := w.partitions.Update(w.f); err != nil {
		return err
	}

	if w.cfg.Flavour&FlavourMD5 != 0 {
		if err := w.computeMD5(); err != nil {
			return err
		}
	}

	w.state = stateDone
	return w.f.Close()
}

// computeMD5 hashes the finished file and writes the sidecar
// atomically.
func (w *Writer) computeMD5() error {
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	h := md5.New()
	if _, err := io.Copy(h, w.f); err != nil && err != io.EOF {
		return err
	}
	w.md5Digest = hex.EncodeToString(h.Sum(nil))

	if w.cfg.MD5SidecarPath == "" {
		return nil
	}
	return renameio.WriteFile(w.cfg.MD5SidecarPath, []byte(w.md5Digest+"\n"), 0644)
}

// FillKey returns the fill key selected by the flavour.
func (w *Writer) FillKey() klv.Key { return w.fillKey }
