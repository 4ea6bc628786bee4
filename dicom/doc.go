// Package dicom reads and writes the DICOM file format as specified in
// [http://dicom.nema.org/medical/dicom/current/output/pdf/part05.pdf] and
// [http://dicom.nema.org/medical/dicom/current/output/pdf/part10.pdf].
//
// The Reader is a push parser: bytes are fed in chunks of any size as they arrive, so it can
// run over non-seekable streams, and it builds a tree of DataElements. The Writer walks such a
// tree back into a stream. A Document ties both together with a data dictionary, loads whole
// files or partial streams, and recomputes group lengths before saving.
//
// Values are decoded lazily according to their VR, see Value.
package dicom
