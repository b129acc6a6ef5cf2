// Package imaging is the image I/O boundary of the document pipeline.
//
// It turns opaque references (file paths or in-memory uploads) into decoded
// pixel buffers, writes rectified results back out as PNG files or base64
// payloads, and renders corner-overlay previews for the editing tools.
//
// # References
//
// Every decoded image is held in a Store under a string reference:
//   - File-backed images use the path exactly as given to Load.
//   - Bytes or base64 uploads get a generated "mem:<uuid>" reference.
//
// Downstream code (detection, rectification, code extraction, re-editing)
// passes these references around instead of pixel data.
//
// # Pixel Layout
//
// Buffers always hold a freshly allocated *image.NRGBA whose bounds start at
// (0,0), regardless of the decoder's native type. Source buffers are never
// modified after creation; every transform allocates its own output.
//
// # Coordinate System
//
// (0,0) is the top-left pixel, X increases rightward, Y increases downward.
//
// # Thread Safety
//
// Store is safe for concurrent use. Buffers are read-only and may be shared
// freely between goroutines.
//
// # Error Handling
//
// Open and decode failures are reported as scanerr.ErrDecode. Encoding and
// file-write failures are returned as plain wrapped errors.
package imaging
