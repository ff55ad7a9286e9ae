package certificate

var PDFText = pdfText
