// Package bytefmt implements the on-disk bytecode format spec.md §6
// describes: a text header of hex-encoded immediates, a literal
// separator line, and a raw binary program tail. It is treated as an
// external collaborator exercised only through Dump/Load -- nothing
// else in this module reaches into its encoding.
package bytefmt

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"nilan/compiler"
	"nilan/heap"
	"nilan/runtime"
)

// sectionMarker is the literal line spec.md §6 calls
// "@Section:Program", separating the text immediates header from the
// binary program tail.
const sectionMarker = "@Section:Program"

// Dump writes ctx's immediates pool and program buffer to w in the
// §6 format: one hex-encoded immediate per line, the section marker,
// then the raw program bytes.
func Dump(ctx *runtime.Context, w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, ref := range ctx.Immediates() {
		buf, err := encodeValue(ctx.Heap, ref)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(bw, "%s\n", hex.EncodeToString(buf)); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(bw, "%s\n", sectionMarker); err != nil {
		return err
	}
	if _, err := bw.Write(ctx.Program); err != nil {
		return err
	}
	return bw.Flush()
}

// Load reads the §6 format from r: it re-interns every immediate the
// header describes (in order, so the ids a loaded program's bytecode
// already refers to line back up), then appends the binary tail to
// ctx's program buffer and runs it one Exit-delimited segment at a
// time -- "invoking the VM at successive entry points until the
// buffer is exhausted" -- returning the last segment's result.
func Load(ctx *runtime.Context, r io.Reader) (heap.Ref, error) {
	br := bufio.NewReader(r)
	sawMarker := false
	for {
		line, err := br.ReadString('\n')
		trimmed := strings.TrimRight(line, "\n")
		if trimmed == sectionMarker {
			sawMarker = true
			break
		}
		if trimmed != "" {
			buf, decErr := hex.DecodeString(trimmed)
			if decErr != nil {
				return heap.InvalidRef, fmt.Errorf("bytefmt: malformed immediate line: %w", decErr)
			}
			ref, _, buildErr := decodeValue(ctx, buf)
			if buildErr != nil {
				return heap.InvalidRef, buildErr
			}
			ctx.PushImmediate(ref)
		}
		if err != nil {
			break
		}
	}
	if !sawMarker {
		return heap.InvalidRef, fmt.Errorf("bytefmt: missing %q separator line", sectionMarker)
	}

	tail, err := io.ReadAll(br)
	if err != nil {
		return heap.InvalidRef, err
	}

	ip := ctx.LoadProgram(compiler.Instructions(tail))
	end := ctx.ProgramLen()
	result := heap.InvalidRef
	for ip < end {
		var segErr error
		result, ip, segErr = ctx.RunSegment(ip)
		if segErr != nil {
			return heap.InvalidRef, segErr
		}
	}
	return result, nil
}

// encodeValue recursively renders ref as a self-delimiting byte
// sequence: one tag byte followed by a tag-specific payload. Pair
// recurses into car and cdr so a whole quoted-datum tree (the shape
// Context.InternDatum builds) serializes as a single immediate line,
// exactly as it was added.
func encodeValue(h *heap.Heap, ref heap.Ref) ([]byte, error) {
	tag := h.Tag(ref)
	switch tag {
	case heap.TagNull:
		return []byte{byte(tag)}, nil
	case heap.TagBoolean:
		v := byte(0)
		if h.GetBoolean(ref) {
			v = 1
		}
		return []byte{byte(tag), v}, nil
	case heap.TagInteger:
		buf := make([]byte, 5)
		buf[0] = byte(tag)
		putInt32(buf[1:], h.GetInteger(ref))
		return buf, nil
	case heap.TagFloat:
		buf := make([]byte, 9)
		buf[0] = byte(tag)
		putFloat64(buf[1:], h.GetFloat(ref))
		return buf, nil
	case heap.TagComplex:
		buf := make([]byte, 17)
		buf[0] = byte(tag)
		re, im := h.GetComplex(ref)
		putFloat64(buf[1:9], re)
		putFloat64(buf[9:17], im)
		return buf, nil
	case heap.TagCharacter:
		buf := make([]byte, 5)
		buf[0] = byte(tag)
		putInt32(buf[1:], int32(h.GetCharacter(ref)))
		return buf, nil
	case heap.TagString:
		s := h.RuneString(ref)
		buf := make([]byte, 5+len(s))
		buf[0] = byte(tag)
		putInt32(buf[1:5], int32(len(s)))
		copy(buf[5:], s)
		return buf, nil
	case heap.TagSymbol:
		name, err := encodeValue(h, h.SymbolName(ref))
		if err != nil {
			return nil, err
		}
		return append([]byte{byte(tag)}, name...), nil
	case heap.TagPair:
		car, err := encodeValue(h, h.Car(ref))
		if err != nil {
			return nil, err
		}
		cdr, err := encodeValue(h, h.Cdr(ref))
		if err != nil {
			return nil, err
		}
		out := append([]byte{byte(tag)}, car...)
		return append(out, cdr...), nil
	case heap.TagFunction:
		// Function immediates exist because Context.SetGlobal stores
		// the bound value in the immediates pool -- every built-in a
		// dumping context installed is one of these. The entry field is
		// a native-table index for Wrapped models (meaningful only if
		// the loading context registered the same natives in the same
		// order, see builtins.InstallNatives) or a program address for
		// Bytecode models (meaningful because the whole program buffer
		// is dumped alongside).
		buf := make([]byte, 12)
		buf[0] = byte(tag)
		buf[1] = byte(h.FunctionModel(ref))
		putUint16(buf[2:4], uint16(h.FunctionRequiredArgs(ref)))
		putUint32(buf[4:8], h.FunctionEntry(ref))
		putUint32(buf[8:12], h.FunctionFrameID(ref))
		if doc := h.FunctionDoc(ref); doc != heap.InvalidRef {
			buf = append(buf, 1)
			encoded, err := encodeValue(h, doc)
			if err != nil {
				return nil, err
			}
			return append(buf, encoded...), nil
		}
		return append(buf, 0), nil
	default:
		return nil, fmt.Errorf("bytefmt: %s cannot appear as a literal immediate", tag)
	}
}

// decodeValue is encodeValue's inverse: it parses one self-delimiting
// value off the front of buf, allocating it directly on ctx's heap,
// and reports how many bytes it consumed so Symbol and Pair can
// decode their nested payloads in sequence. Null and Boolean decode
// to ctx's canonical singletons rather than fresh records -- the VM
// tests falsiness and null-ness by reference identity, so a loaded
// `false` must be the same Ref PushFalse pushes.
func decodeValue(ctx *runtime.Context, buf []byte) (heap.Ref, int, error) {
	if len(buf) == 0 {
		return heap.InvalidRef, 0, fmt.Errorf("bytefmt: truncated immediate")
	}
	h := ctx.Heap
	tag := heap.Tag(buf[0])
	switch tag {
	case heap.TagNull:
		return ctx.NullRef, 1, nil
	case heap.TagBoolean:
		if len(buf) < 2 {
			return heap.InvalidRef, 0, fmt.Errorf("bytefmt: truncated Boolean immediate")
		}
		if buf[1] != 0 {
			return ctx.TrueRef, 2, nil
		}
		return ctx.FalseRef, 2, nil
	case heap.TagInteger:
		if len(buf) < 5 {
			return heap.InvalidRef, 0, fmt.Errorf("bytefmt: truncated Integer immediate")
		}
		ref, err := h.NewInteger(getInt32(buf[1:5]))
		return ref, 5, err
	case heap.TagFloat:
		if len(buf) < 9 {
			return heap.InvalidRef, 0, fmt.Errorf("bytefmt: truncated Float immediate")
		}
		ref, err := h.NewFloat(getFloat64(buf[1:9]))
		return ref, 9, err
	case heap.TagComplex:
		if len(buf) < 17 {
			return heap.InvalidRef, 0, fmt.Errorf("bytefmt: truncated Complex immediate")
		}
		ref, err := h.NewComplex(getFloat64(buf[1:9]), getFloat64(buf[9:17]))
		return ref, 17, err
	case heap.TagCharacter:
		if len(buf) < 5 {
			return heap.InvalidRef, 0, fmt.Errorf("bytefmt: truncated Character immediate")
		}
		ref, err := h.NewCharacter(rune(getInt32(buf[1:5])))
		return ref, 5, err
	case heap.TagString:
		if len(buf) < 5 {
			return heap.InvalidRef, 0, fmt.Errorf("bytefmt: truncated String immediate")
		}
		n := int(getInt32(buf[1:5]))
		if len(buf) < 5+n {
			return heap.InvalidRef, 0, fmt.Errorf("bytefmt: truncated String immediate body")
		}
		ref, err := h.NewString([]rune(string(buf[5 : 5+n])))
		return ref, 5 + n, err
	case heap.TagSymbol:
		nameRef, n, err := decodeValue(ctx, buf[1:])
		if err != nil {
			return heap.InvalidRef, 0, err
		}
		ref, err := h.NewSymbol(nameRef)
		return ref, 1 + n, err
	case heap.TagPair:
		carRef, carN, err := decodeValue(ctx, buf[1:])
		if err != nil {
			return heap.InvalidRef, 0, err
		}
		cdrRef, cdrN, err := decodeValue(ctx, buf[1+carN:])
		if err != nil {
			return heap.InvalidRef, 0, err
		}
		ref, err := h.NewPair(carRef, cdrRef)
		return ref, 1 + carN + cdrN, err
	case heap.TagFunction:
		if len(buf) < 13 {
			return heap.InvalidRef, 0, fmt.Errorf("bytefmt: truncated Function immediate")
		}
		model := heap.InvocationModel(buf[1])
		requiredArgs := int(getUint16(buf[2:4]))
		entry := getUint32(buf[4:8])
		frameID := getUint32(buf[8:12])
		doc := heap.InvalidRef
		n := 13
		if buf[12] != 0 {
			docRef, docN, err := decodeValue(ctx, buf[13:])
			if err != nil {
				return heap.InvalidRef, 0, err
			}
			doc = docRef
			n += docN
		}
		ref, err := h.NewFunction(model, requiredArgs, doc, entry, frameID)
		return ref, n, err
	default:
		return heap.InvalidRef, 0, fmt.Errorf("bytefmt: unknown tag byte %d", buf[0])
	}
}
