// ABOUTME: Minimal DrawingML theme shared by the pptx and docx packages
// ABOUTME: Office requires a complete color, font and format scheme even when nothing references it

package render

const themeXML = xmlHeader + `<a:theme xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" name="Deckbot">` +
	`<a:themeElements>` +
	`<a:clrScheme name="Deckbot">` +
	`<a:dk1><a:srgbClr val="000000"/></a:dk1>` +
	`<a:lt1><a:srgbClr val="FFFFFF"/></a:lt1>` +
	`<a:dk2><a:srgbClr val="2C3E50"/></a:dk2>` +
	`<a:lt2><a:srgbClr val="ECF0F1"/></a:lt2>` +
	`<a:accent1><a:srgbClr val="3498DB"/></a:accent1>` +
	`<a:accent2><a:srgbClr val="667EEA"/></a:accent2>` +
	`<a:accent3><a:srgbClr val="764BA2"/></a:accent3>` +
	`<a:accent4><a:srgbClr val="43E97B"/></a:accent4>` +
	`<a:accent5><a:srgbClr val="FA709A"/></a:accent5>` +
	`<a:accent6><a:srgbClr val="30CFD0"/></a:accent6>` +
	`<a:hlink><a:srgbClr val="2980B9"/></a:hlink>` +
	`<a:folHlink><a:srgbClr val="8E44AD"/></a:folHlink>` +
	`</a:clrScheme>` +
	`<a:fontScheme name="Deckbot">` +
	`<a:majorFont><a:latin typeface="Calibri"/><a:ea typeface=""/><a:cs typeface=""/></a:majorFont>` +
	`<a:minorFont><a:latin typeface="Calibri"/><a:ea typeface=""/><a:cs typeface=""/></a:minorFont>` +
	`</a:fontScheme>` +
	`<a:fmtScheme name="Deckbot">` +
	`<a:fillStyleLst>` +
	`<a:solidFill><a:schemeClr val="phClr"/></a:solidFill>` +
	`<a:solidFill><a:schemeClr val="phClr"/></a:solidFill>` +
	`<a:solidFill><a:schemeClr val="phClr"/></a:solidFill>` +
	`</a:fillStyleLst>` +
	`<a:lnStyleLst>` +
	`<a:ln w="6350"><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln>` +
	`<a:ln w="12700"><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln>` +
	`<a:ln w="19050"><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln>` +
	`</a:lnStyleLst>` +
	`<a:effectStyleLst>` +
	`<a:effectStyle><a:effectLst/></a:effectStyle>` +
	`<a:effectStyle><a:effectLst/></a:effectStyle>` +
	`<a:effectStyle><a:effectLst/></a:effectStyle>` +
	`</a:effectStyleLst>` +
	`<a:bgFillStyleLst>` +
	`<a:solidFill><a:schemeClr val="phClr"/></a:solidFill>` +
	`<a:solidFill><a:schemeClr val="phClr"/></a:solidFill>` +
	`<a:solidFill><a:schemeClr val="phClr"/></a:solidFill>` +
	`</a:bgFillStyleLst>` +
	`</a:fmtScheme>` +
	`</a:themeElements>` +
	`<a:objectDefaults/>` +
	`<a:extraClrSchemeLst/>` +
	`</a:theme>`
