package pdfdoc

var FormatMatrix = formatMatrix
