package loaders

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"golang.org/x/exp/slices"
)

const (
	spirvMagic        uint32 = 0x07230203
	spirvHeaderWords         = 5
	maxDescriptorSets        = 4
)

// opcodes
const (
	opName             uint32 = 5
	opEntryPoint       uint32 = 15
	opTypeInt          uint32 = 21
	opTypeFloat        uint32 = 22
	opTypeVector       uint32 = 23
	opTypeMatrix       uint32 = 24
	opTypeImage        uint32 = 25
	opTypeSampler      uint32 = 26
	opTypeSampledImage uint32 = 27
	opTypeArray        uint32 = 28
	opTypeRuntimeArray uint32 = 29
	opTypeStruct       uint32 = 30
	opTypePointer      uint32 = 32
	opConstant         uint32 = 43
	opVariable         uint32 = 59
	opDecorate         uint32 = 71
	opMemberDecorate   uint32 = 72
)

const (
	decorationBlock         uint32 = 2
	decorationBufferBlock   uint32 = 3
	decorationArrayStride   uint32 = 6
	decorationMatrixStride  uint32 = 7
	decorationBinding       uint32 = 33
	decorationDescriptorSet uint32 = 34
	decorationOffset        uint32 = 35
)

const (
	storageUniformConstant uint32 = 0
	storageUniform         uint32 = 2
	storagePushConstant    uint32 = 9
	storageStorageBuffer   uint32 = 12
)

const (
	imageDimBuffer    uint32 = 5
	imageSampledStore uint32 = 2
)

var executionModels = map[uint32]metadata.ShaderStageFlags{
	0: metadata.ShaderStageVertex,
	4: metadata.ShaderStageFragment,
	5: metadata.ShaderStageCompute,
}

// minimum operand count after the result id
var typeOperands = map[uint32]int{
	opTypeInt:          2,
	opTypeFloat:        1,
	opTypeVector:       2,
	opTypeMatrix:       2,
	opTypeImage:        7,
	opTypeSampler:      0,
	opTypeSampledImage: 1,
	opTypeArray:        2,
	opTypeRuntimeArray: 1,
	opTypeStruct:       0,
	opTypePointer:      2,
}

var ErrInvalidSPIRV = errors.New("invalid SPIR-V module")

type spirvType struct {
	op       uint32
	operands []uint32
}

type spirvVariable struct {
	id      uint32
	typeID  uint32
	storage uint32
}

type spirvModule struct {
	types       map[uint32]spirvType
	constants   map[uint32]uint32
	names       map[uint32]string
	decorations map[uint32]map[uint32]uint32
	members     map[uint32]map[uint32]map[uint32]uint32
	variables   []spirvVariable

	hasEntry   bool
	model      uint32
	entryPoint string
}

// ReflectSPIRV walks the instruction stream of a SPIR-V module and returns
// the stage of its first entry point, the descriptor bindings it declares
// sorted by set and binding, and the size of its push constant block.
func ReflectSPIRV(code []uint32) (*metadata.ShaderBinary, error) {
	m, err := parseSPIRV(code)
	if err != nil {
		return nil, err
	}
	if !m.hasEntry {
		return nil, fmt.Errorf("%w: no entry point", ErrInvalidSPIRV)
	}
	stage, ok := executionModels[m.model]
	if !ok {
		return nil, fmt.Errorf("unsupported execution model %d", m.model)
	}

	shader := &metadata.ShaderBinary{
		Stage:      stage,
		EntryPoint: m.entryPoint,
		Code:       code,
	}
	for _, v := range m.variables {
		ptr, ok := m.types[v.typeID]
		if !ok || ptr.op != opTypePointer {
			return nil, fmt.Errorf("%w: variable %d has no pointer type", ErrInvalidSPIRV, v.id)
		}
		pointee := ptr.operands[1]

		switch v.storage {
		case storagePushConstant:
			size, err := m.sizeOf(pointee)
			if err != nil {
				return nil, fmt.Errorf("push constant block: %w", err)
			}
			shader.PushConstantSize = max(shader.PushConstantSize, size)
		case storageUniformConstant, storageUniform, storageStorageBuffer:
			set, hasSet := m.decoration(v.id, decorationDescriptorSet)
			binding, hasBinding := m.decoration(v.id, decorationBinding)
			if !hasSet || !hasBinding {
				continue
			}
			if set >= maxDescriptorSets {
				return nil, fmt.Errorf("binding %d uses descriptor set %d, at most %d sets are supported", binding, set, maxDescriptorSets)
			}
			typ, count, structID, err := m.descriptorOf(pointee, v.storage)
			if err != nil {
				return nil, fmt.Errorf("set %d binding %d: %w", set, binding, err)
			}
			name := m.names[v.id]
			if name == "" {
				name = m.names[structID]
			}
			shader.Bindings = append(shader.Bindings, metadata.ShaderBinding{
				Set:     set,
				Binding: binding,
				Type:    typ,
				Count:   count,
				Name:    name,
			})
		}
	}

	slices.SortFunc(shader.Bindings, func(a, b metadata.ShaderBinding) int {
		if a.Set != b.Set {
			return int(a.Set) - int(b.Set)
		}
		return int(a.Binding) - int(b.Binding)
	})
	return shader, nil
}

func parseSPIRV(code []uint32) (*spirvModule, error) {
	if len(code) < spirvHeaderWords {
		return nil, fmt.Errorf("%w: %d words is shorter than the header", ErrInvalidSPIRV, len(code))
	}
	if code[0] != spirvMagic {
		return nil, fmt.Errorf("%w: bad magic %#08x", ErrInvalidSPIRV, code[0])
	}

	m := &spirvModule{
		types:       make(map[uint32]spirvType),
		constants:   make(map[uint32]uint32),
		names:       make(map[uint32]string),
		decorations: make(map[uint32]map[uint32]uint32),
		members:     make(map[uint32]map[uint32]map[uint32]uint32),
	}
	for i := spirvHeaderWords; i < len(code); {
		count := int(code[i] >> 16)
		op := code[i] & 0xFFFF
		if count == 0 || i+count > len(code) {
			return nil, fmt.Errorf("%w: truncated instruction %d at word %d", ErrInvalidSPIRV, op, i)
		}
		args := code[i+1 : i+count]
		i += count

		switch op {
		case opName:
			if len(args) >= 1 {
				m.names[args[0]] = decodeString(args[1:])
			}
		case opEntryPoint:
			if len(args) >= 2 && !m.hasEntry {
				m.hasEntry = true
				m.model = args[0]
				m.entryPoint = decodeString(args[2:])
			}
		case opTypeInt, opTypeFloat, opTypeVector, opTypeMatrix, opTypeImage, opTypeSampler,
			opTypeSampledImage, opTypeArray, opTypeRuntimeArray, opTypeStruct, opTypePointer:
			if len(args) < 1+typeOperands[op] {
				return nil, fmt.Errorf("%w: short type instruction %d", ErrInvalidSPIRV, op)
			}
			m.types[args[0]] = spirvType{op: op, operands: args[1:]}
		case opConstant:
			if len(args) >= 3 {
				m.constants[args[1]] = args[2]
			}
		case opVariable:
			if len(args) < 3 {
				return nil, fmt.Errorf("%w: short OpVariable", ErrInvalidSPIRV)
			}
			m.variables = append(m.variables, spirvVariable{id: args[1], typeID: args[0], storage: args[2]})
		case opDecorate:
			if len(args) < 2 {
				return nil, fmt.Errorf("%w: short OpDecorate", ErrInvalidSPIRV)
			}
			d, ok := m.decorations[args[0]]
			if !ok {
				d = make(map[uint32]uint32)
				m.decorations[args[0]] = d
			}
			d[args[1]] = literal(args[2:])
		case opMemberDecorate:
			if len(args) < 3 {
				return nil, fmt.Errorf("%w: short OpMemberDecorate", ErrInvalidSPIRV)
			}
			s, ok := m.members[args[0]]
			if !ok {
				s = make(map[uint32]map[uint32]uint32)
				m.members[args[0]] = s
			}
			d, ok := s[args[1]]
			if !ok {
				d = make(map[uint32]uint32)
				s[args[1]] = d
			}
			d[args[2]] = literal(args[3:])
		}
	}
	return m, nil
}

func literal(words []uint32) uint32 {
	if len(words) == 0 {
		return 0
	}
	return words[0]
}

// decodeString reads a nul terminated UTF-8 literal packed four bytes per word.
func decodeString(words []uint32) string {
	buf := make([]byte, 0, len(words)*4)
	for _, w := range words {
		for shift := 0; shift < 32; shift += 8 {
			c := byte(w >> shift)
			if c == 0 {
				return string(buf)
			}
			buf = append(buf, c)
		}
	}
	return string(buf)
}

func (m *spirvModule) decoration(id, decoration uint32) (uint32, bool) {
	v, ok := m.decorations[id][decoration]
	return v, ok
}

func (m *spirvModule) memberDecoration(id, member, decoration uint32) (uint32, bool) {
	v, ok := m.members[id][member][decoration]
	return v, ok
}

func (m *spirvModule) arrayLength(t spirvType) (uint32, error) {
	length, ok := m.constants[t.operands[1]]
	if !ok {
		return 0, fmt.Errorf("%w: array length is not a constant", ErrInvalidSPIRV)
	}
	return length, nil
}

// descriptorOf unwraps arrays around a resource type and maps it to a
// descriptor type. It also returns the block struct id, if any.
func (m *spirvModule) descriptorOf(id, storage uint32) (metadata.DescriptorType, uint32, uint32, error) {
	count := uint32(1)
	for {
		t, ok := m.types[id]
		if !ok {
			return 0, 0, 0, fmt.Errorf("%w: unknown type %d", ErrInvalidSPIRV, id)
		}
		switch t.op {
		case opTypeArray:
			length, err := m.arrayLength(t)
			if err != nil {
				return 0, 0, 0, err
			}
			count *= length
			id = t.operands[0]
			continue
		case opTypeRuntimeArray:
			return 0, 0, 0, errors.New("unbounded descriptor arrays are not supported")
		case opTypeSampledImage:
			return metadata.DescriptorTypeCombinedImageSampler, count, 0, nil
		case opTypeSampler:
			return metadata.DescriptorTypeSampler, count, 0, nil
		case opTypeImage:
			if t.operands[1] == imageDimBuffer {
				return 0, 0, 0, errors.New("texel buffers are not supported")
			}
			if t.operands[5] == imageSampledStore {
				return metadata.DescriptorTypeStorageImage, count, 0, nil
			}
			return metadata.DescriptorTypeSampledImage, count, 0, nil
		case opTypeStruct:
			if _, buffer := m.decoration(id, decorationBufferBlock); buffer || storage == storageStorageBuffer {
				return metadata.DescriptorTypeStorageBuffer, count, id, nil
			}
			return metadata.DescriptorTypeUniformBuffer, count, id, nil
		default:
			return 0, 0, 0, fmt.Errorf("type op %d is not a descriptor resource", t.op)
		}
	}
}

// sizeOf returns the byte size of a type laid out with explicit offsets,
// as push constant blocks are.
func (m *spirvModule) sizeOf(id uint32) (uint32, error) {
	t, ok := m.types[id]
	if !ok {
		return 0, fmt.Errorf("%w: unknown type %d", ErrInvalidSPIRV, id)
	}
	switch t.op {
	case opTypeInt, opTypeFloat:
		return t.operands[0] / 8, nil
	case opTypeVector, opTypeMatrix:
		elem, err := m.sizeOf(t.operands[0])
		if err != nil {
			return 0, err
		}
		return elem * t.operands[1], nil
	case opTypeArray:
		length, err := m.arrayLength(t)
		if err != nil {
			return 0, err
		}
		stride, ok := m.decoration(id, decorationArrayStride)
		if !ok {
			if stride, err = m.sizeOf(t.operands[0]); err != nil {
				return 0, err
			}
		}
		return stride * length, nil
	case opTypeStruct:
		var size uint32
		for i, member := range t.operands {
			offset, _ := m.memberDecoration(id, uint32(i), decorationOffset)
			msize, err := m.sizeOf(member)
			if err != nil {
				return 0, err
			}
			mt := m.types[member]
			if stride, ok := m.memberDecoration(id, uint32(i), decorationMatrixStride); ok && mt.op == opTypeMatrix {
				msize = stride * mt.operands[1]
			}
			size = max(size, offset+msize)
		}
		return size, nil
	default:
		return 0, fmt.Errorf("type op %d has no size", t.op)
	}
}
