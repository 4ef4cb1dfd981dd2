package abbrev

// Tag identifies the kind of a debugging-information entry.
type Tag uint32

// Tags the symbolizer cares about. Other values pass through untouched.
const (
	TagArrayType          Tag = 0x01
	TagClassType          Tag = 0x02
	TagLexicalBlock       Tag = 0x0b
	TagCompileUnit        Tag = 0x11
	TagStructType         Tag = 0x13
	TagSubroutineType     Tag = 0x15
	TagInlinedSubroutine  Tag = 0x1d
	TagSubprogram         Tag = 0x2e
	TagVariable           Tag = 0x34
	TagNamespace          Tag = 0x39
	TagPartialUnit        Tag = 0x3c
	TagSkeletonUnit       Tag = 0x4a
	TagFormalParameter    Tag = 0x05
	TagTryBlock           Tag = 0x32
	TagCatchBlock         Tag = 0x25
	TagEntryPoint         Tag = 0x03
	TagGNUCallSite        Tag = 0x4109
	TagCallSite           Tag = 0x48
	TagTypeUnit           Tag = 0x41
	TagImportedUnit       Tag = 0x3d
	TagSubrangeType       Tag = 0x21
	TagUnspecifiedType    Tag = 0x3b
	TagBaseType           Tag = 0x24
	TagPointerType        Tag = 0x0f
	TagTypedef            Tag = 0x16
	TagConstType          Tag = 0x26
	TagEnumerationType    Tag = 0x04
	TagEnumerator         Tag = 0x28
	TagMember             Tag = 0x0d
	TagUnionType          Tag = 0x17
	TagVolatileType       Tag = 0x35
	TagRestrictType       Tag = 0x37
	TagReferenceType      Tag = 0x10
	TagRvalueReferenceTyp Tag = 0x42
)

// Attr identifies an attribute of a debugging-information entry.
type Attr uint32

const (
	AttrSibling        Attr = 0x01
	AttrLocation       Attr = 0x02
	AttrName           Attr = 0x03
	AttrStmtList       Attr = 0x10
	AttrLowpc          Attr = 0x11
	AttrHighpc         Attr = 0x12
	AttrLanguage       Attr = 0x13
	AttrCompDir        Attr = 0x1b
	AttrProducer       Attr = 0x25
	AttrAbstractOrigin Attr = 0x31
	AttrDeclFile       Attr = 0x3a
	AttrDeclLine       Attr = 0x3b
	AttrDeclaration    Attr = 0x3c
	AttrExternal       Attr = 0x3f
	AttrFrameBase      Attr = 0x40
	AttrSpecification  Attr = 0x47
	AttrRanges         Attr = 0x55
	AttrCallColumn     Attr = 0x57
	AttrCallFile       Attr = 0x58
	AttrCallLine       Attr = 0x59
	AttrEntrypc        Attr = 0x52
	AttrLinkageName    Attr = 0x6e
	AttrStrOffsetsBase Attr = 0x72
	AttrAddrBase       Attr = 0x73
	AttrRnglistsBase   Attr = 0x74
	AttrLoclistsBase   Attr = 0x8c

	// Pre-DWARF4 vendor spelling of the linkage name.
	AttrMIPSLinkageName Attr = 0x2007
)

// Form identifies the on-disk encoding of an attribute value.
type Form uint32

const (
	FormAddr          Form = 0x01
	FormBlock2        Form = 0x03
	FormBlock4        Form = 0x04
	FormData2         Form = 0x05
	FormData4         Form = 0x06
	FormData8         Form = 0x07
	FormString        Form = 0x08
	FormBlock         Form = 0x09
	FormBlock1        Form = 0x0a
	FormData1         Form = 0x0b
	FormFlag          Form = 0x0c
	FormSdata         Form = 0x0d
	FormStrp          Form = 0x0e
	FormUdata         Form = 0x0f
	FormRefAddr       Form = 0x10
	FormRef1          Form = 0x11
	FormRef2          Form = 0x12
	FormRef4          Form = 0x13
	FormRef8          Form = 0x14
	FormRefUdata      Form = 0x15
	FormIndirect      Form = 0x16
	FormSecOffset     Form = 0x17
	FormExprloc       Form = 0x18
	FormFlagPresent   Form = 0x19
	FormStrx          Form = 0x1a
	FormAddrx         Form = 0x1b
	FormRefSup4       Form = 0x1c
	FormStrpSup       Form = 0x1d
	FormData16        Form = 0x1e
	FormLineStrp      Form = 0x1f
	FormRefSig8       Form = 0x20
	FormImplicitConst Form = 0x21
	FormLoclistx      Form = 0x22
	FormRnglistx      Form = 0x23
	FormRefSup8       Form = 0x24
	FormStrx1         Form = 0x25
	FormStrx2         Form = 0x26
	FormStrx3         Form = 0x27
	FormStrx4         Form = 0x28
	FormAddrx1        Form = 0x29
	FormAddrx2        Form = 0x2a
	FormAddrx3        Form = 0x2b
	FormAddrx4        Form = 0x2c
)
