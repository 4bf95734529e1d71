package metadata

/** @brief A single descriptor binding found in a shader binary. */
type ShaderBinding struct {
	Set     uint32
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Name    string
}

/**
 * @brief A SPIR-V module with the interface data reflected from it.
 * Code holds 32-bit words in host order.
 */
type ShaderBinary struct {
	Name       string
	Stage      ShaderStageFlags
	EntryPoint string
	Code       []uint32
	Bindings   []ShaderBinding
	// PushConstantSize is 0 when the stage declares no push constant block.
	PushConstantSize uint32
}
